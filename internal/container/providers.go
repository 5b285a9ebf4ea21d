package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/currency"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/metrics"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/mongodb"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/report"
	"github.com/garyjia/expense-approval/internal/infrastructure/storage"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
)

// DatabaseBundle holds the open store and the repositories on top of it.
// Exactly one of SQL and Mongo is set.
type DatabaseBundle struct {
	SQL       *database.DB
	Mongo     *mongodb.Store
	TxManager port.TransactionManager
	Repos     *RepositoryBundle
}

// Close releases whichever store is open
func (b *DatabaseBundle) Close(ctx context.Context) error {
	switch {
	case b.SQL != nil:
		return b.SQL.Close()
	case b.Mongo != nil:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return b.Mongo.Close(ctx)
	}
	return nil
}

// ProvideDatabase opens the configured store, migrates it and builds the repositories.
func ProvideDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Database.Driver {
	case config.DriverMongo:
		return provideMongo(ctx, cfg.Mongo, logger)
	default:
		return provideSQLite(cfg.Database, logger)
	}
}

func provideSQLite(cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(migrations.FS()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	tx := sqlite.NewDB(db.DB, logger)
	return &DatabaseBundle{
		SQL:       db,
		TxManager: tx,
		Repos: &RepositoryBundle{
			Users:    repository.NewUserRepository(tx, logger),
			Rules:    repository.NewRuleRepository(tx, logger),
			Expenses: repository.NewExpenseRepository(tx, logger),
			History:  repository.NewHistoryRepository(tx, logger),
		},
	}, nil
}

func provideMongo(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	store, err := mongodb.Connect(ctx, mongodb.Config{
		URI:            cfg.URI,
		Database:       cfg.Database,
		ConnectTimeout: cfg.ConnectTimeout,
		Transactions:   cfg.Transactions,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(context.Background())
		return nil, err
	}

	return &DatabaseBundle{
		Mongo:     store,
		TxManager: store,
		Repos: &RepositoryBundle{
			Users:    mongodb.NewUserRepository(store, logger),
			Rules:    mongodb.NewRuleRepository(store, logger),
			Expenses: mongodb.NewExpenseRepository(store, logger),
			History:  mongodb.NewHistoryRepository(store, logger),
		},
	}, nil
}

// SeedUsers upserts the configured directory entries.
func SeedUsers(ctx context.Context, users port.UserDirectory, seeds []config.UserSeed, logger *zap.Logger) error {
	for _, s := range seeds {
		user := &entity.User{
			ID:         s.ID,
			CompanyID:  s.CompanyID,
			Name:       s.Name,
			Email:      s.Email,
			Role:       entity.Role(s.Role),
			ManagerID:  s.ManagerID,
			Currency:   s.Currency,
			LarkOpenID: s.LarkOpenID,
		}
		if err := users.Save(ctx, user); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", s.ID, err)
		}
	}
	if len(seeds) > 0 {
		logger.Info("Seeded user directory", zap.Int("count", len(seeds)))
	}
	return nil
}

// ExternalBundle holds outbound collaborators.
type ExternalBundle struct {
	Converter *currency.Client
	Notifier  port.Notifier
}

// ProvideExternalClients creates the exchange-rate client and the approver notifier.
// Without Lark credentials notifications are only logged.
func ProvideExternalClients(cfg *config.Config, logger *zap.Logger) (*ExternalBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	converter, err := currency.NewClient(currency.Config{
		BaseURL:           cfg.Currency.BaseURL,
		Timeout:           cfg.Currency.Timeout,
		CacheTTL:          cfg.Currency.CacheTTL,
		RequestsPerSecond: cfg.Currency.RequestsPerSecond,
		Burst:             cfg.Currency.Burst,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create currency client: %w", err)
	}

	var notifier port.Notifier
	if cfg.Lark.Enabled {
		client := infraLark.NewSDKClient(infraLark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			BaseURL:   cfg.Lark.BaseURL,
		}, logger)
		notifier = infraLark.NewNotifier(client, logger)
	} else {
		notifier = infraLark.NewLogNotifier(logger)
	}

	return &ExternalBundle{Converter: converter, Notifier: notifier}, nil
}

// StorageBundle holds receipt storage and the export writer.
type StorageBundle struct {
	Receipts port.ReceiptStore
	Reports  port.ReportWriter
}

// ProvideStorage creates the receipt store and the spreadsheet writer.
func ProvideStorage(cfg *config.ReceiptsConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("receipts config is required")
	}

	receipts, err := storage.NewLocalReceiptStore(cfg.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipt store: %w", err)
	}

	return &StorageBundle{
		Receipts: receipts,
		Reports:  report.NewExcelWriter(logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher, reporting handler outcomes to m when set.
func ProvideDispatcher(m *metrics.Metrics, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})}
	if m != nil {
		opts = append(opts, dispatcher.WithObserver(m.ObserveHandler))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos           *RepositoryBundle
	TxManager       port.TransactionManager
	External        *ExternalBundle
	Storage         *StorageBundle
	Dispatcher      dispatcher.Dispatcher
	Metrics         *metrics.Metrics
	MaxReceiptBytes int64
	Logger          *zap.Logger
}

// ProvideServices creates all application services and subscribes the notifier to expense events.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.External == nil || deps.Storage == nil {
		return nil, fmt.Errorf("external and storage bundles are required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}

	var observed service.Metrics
	if deps.Metrics != nil {
		observed = deps.Metrics
	}

	expenses := service.NewExpenseService(service.ExpenseDeps{
		Expenses:  deps.Repos.Expenses,
		Rules:     deps.Repos.Rules,
		Users:     deps.Repos.Users,
		History:   deps.Repos.History,
		TxManager: deps.TxManager,
		Receipts:  deps.Storage.Receipts,
		Converter: deps.External.Converter,
		Reports:   deps.Storage.Reports,
		Publisher: deps.Dispatcher,
		Metrics:   observed,
		Logger:    logger,
	}, service.WithMaxReceiptBytes(deps.MaxReceiptBytes))

	rules := service.NewRuleService(deps.Repos.Rules, deps.Repos.Users, deps.Dispatcher, logger)

	notifications := service.NewNotificationService(deps.Repos.Users, deps.External.Notifier, logger)
	notifications.Register(deps.Dispatcher)

	return &ServiceBundle{
		Rules:         rules,
		Expenses:      expenses,
		Notifications: notifications,
	}, nil
}
