package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
)

type memoryRepo struct {
	defaults map[string]string
	years    []FiscalYear
}

func (r memoryRepo) UserDefault(ctx context.Context, userID, key string) (string, error) {
	return r.defaults[userID+"/"+key], nil
}

func (r memoryRepo) FindFiscalYearByDate(ctx context.Context, date time.Time) (FiscalYear, error) {
	for _, fy := range r.years {
		if fy.Contains(date) {
			return fy, nil
		}
	}
	return FiscalYear{}, shared.ErrFiscalYearNotFound
}

func TestDefaultFiscalYearResolutionOrder(t *testing.T) {
	repo := memoryRepo{
		defaults: map[string]string{"u-1/fiscal_year": "2023-2024"},
		years: []FiscalYear{{
			Name:      "2024-2025",
			StartDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		}},
	}
	on := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	fy, err := NewService(repo, "2022-2023").DefaultFiscalYear(context.Background(), "u-1", on)
	require.NoError(t, err)
	require.Equal(t, "2023-2024", fy)

	fy, err = NewService(repo, "2022-2023").DefaultFiscalYear(context.Background(), "u-2", on)
	require.NoError(t, err)
	require.Equal(t, "2022-2023", fy)

	fy, err = NewService(repo, "").DefaultFiscalYear(context.Background(), "u-2", on)
	require.NoError(t, err)
	require.Equal(t, "2024-2025", fy)

	_, err = NewService(repo, "").DefaultFiscalYear(context.Background(), "", on.AddDate(3, 0, 0))
	require.ErrorIs(t, err, shared.ErrFiscalYearNotFound)
}
