package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/expensepay/internal/accounting/accounts"
	"github.com/odyssey-erp/expensepay/internal/accounting/costcenters"
	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/accounting/periods"
	"github.com/odyssey-erp/expensepay/internal/correction"
	"github.com/odyssey-erp/expensepay/internal/expenses"
	"github.com/odyssey-erp/expensepay/internal/integration"
	"github.com/odyssey-erp/expensepay/internal/masterdata/taxes"
	"github.com/odyssey-erp/expensepay/internal/reconcile"
	"github.com/odyssey-erp/expensepay/internal/shared"
)

// Services is the domain object graph shared by the API server and the
// worker.
type Services struct {
	Ledger    ledger.Repository
	Expenses  *expenses.Service
	Scanner   *reconcile.Scanner
	Corrector *correction.Corrector
}

// ServiceDeps lists the infrastructure the graph is built on. Enqueuer is
// nil inside the worker.
type ServiceDeps struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Config   *Config
	Logger   *slog.Logger
	Enqueuer correction.Enqueuer
}

// NewServices wires repositories, validators and generators.
func NewServices(deps ServiceDeps) *Services {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{}
	}

	accountRepo := accounts.NewRepository(deps.Pool)
	costCenterRepo := costcenters.NewRepository(deps.Pool)
	templates := taxes.NewCache(taxes.NewRepository(deps.Pool), deps.Redis, cfg.TaxCacheTTL)
	fiscalYears := periods.NewService(periods.NewRepository(deps.Pool), cfg.DefaultFiscalYear)

	ledgerRepo := ledger.NewRepository(deps.Pool)
	writer := ledger.NewWriter(ledgerRepo, logger.With(slog.String("component", "ledger")))

	documents := expenses.NewRepository(deps.Pool)
	validator := expenses.NewAccountValidator(accounts.NewValidator(accountRepo), templates)
	hooks := integration.NewHooks(writer, integration.Deps{
		Validator:   validator,
		Templates:   templates,
		FiscalYears: fiscalYears,
	}, shared.NewAuditLogger(deps.Pool), logger.With(slog.String("component", "integration")))

	service := expenses.NewService(documents, validator, hooks, shared.NewIdempotencyStore(deps.Pool), logger)
	scanner := reconcile.NewScanner(documents, hooks, writer, logger.With(slog.String("component", "reconcile")))
	corrector := correction.NewCorrector(correction.Deps{
		Runs:        correction.NewRepository(deps.Pool),
		Documents:   documents,
		Ledger:      ledgerRepo,
		CostCenters: costCenterRepo,
		Templates:   templates,
		Enqueuer:    deps.Enqueuer,
	}, logger.With(slog.String("component", "correction")))

	return &Services{
		Ledger:    ledgerRepo,
		Expenses:  service,
		Scanner:   scanner,
		Corrector: corrector,
	}
}
