package accounts

import "time"

// RootType enumerates CoA root categories.
type RootType string

const (
	RootTypeAsset     RootType = "ASSET"
	RootTypeLiability RootType = "LIABILITY"
	RootTypeEquity    RootType = "EQUITY"
	RootTypeIncome    RootType = "INCOME"
	RootTypeExpense   RootType = "EXPENSE"
)

// Account models a chart of accounts node. Group accounts aggregate their
// children and cannot receive ledger lines.
type Account struct {
	Name          string
	AccountNumber string
	Company       string
	RootType      RootType
	ParentAccount *string
	IsGroup       bool
	Disabled      bool
	UpdatedAt     time.Time
}
