package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage drivers for the run history.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StoreConfig selects the history backend. SQLite (pure Go, no CGO) is
// the default, with the database file under the harness state directory;
// PostgreSQL is for sharded pipelines that aggregate into one shared
// store.
type StoreConfig struct {
	Driver string // "sqlite" (default) or "postgres"
	Path   string // SQLite database file path
	DSN    string // PostgreSQL DSN
}

// RunModel is one persisted run summary, the input to trend computation.
type RunModel struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	TotalPassed  int
	TotalFailed  int
	TotalSkipped int
	SuccessRate  float64
	DurationMS   int64
}

// TableName overrides GORM's default pluralization.
func (RunModel) TableName() string { return "runs" }

// Store persists run summaries for trend history.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenStore opens the configured backend and migrates the schema.
func OpenStore(cfg StoreConfig, slogger *slog.Logger) (*Store, error) {
	if slogger == nil {
		slogger = slog.Default()
	}

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	gormCfg := &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver := cfg.Driver; driver {
	case "", DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite history path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
		dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", cfg.Path)
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres history DSN is required")
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unknown history driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening run history store: %w", err)
	}

	if err := db.AutoMigrate(&RunModel{}); err != nil {
		return nil, fmt.Errorf("migrating run history schema: %w", err)
	}

	return &Store{db: db, logger: slogger}, nil
}

// Save appends one run summary to the history.
func (s *Store) Save(sum Summary) error {
	row := RunModel{
		CreatedAt:    time.Now().UTC(),
		TotalPassed:  sum.TotalPassed,
		TotalFailed:  sum.TotalFailed,
		TotalSkipped: sum.TotalSkipped,
		SuccessRate:  sum.SuccessRate,
		DurationMS:   sum.Duration.Milliseconds(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("saving run summary: %w", err)
	}
	return nil
}

// History returns up to n most recent runs, ordered oldest first, ready
// for ComputeTrend.
func (s *Store) History(n int) ([]Summary, error) {
	var rows []RunModel
	if err := s.db.Order("id DESC").Limit(n).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading run history: %w", err)
	}

	out := make([]Summary, len(rows))
	for i, row := range rows {
		// Reverse into oldest-first order.
		out[len(rows)-1-i] = Summary{
			TotalPassed:  row.TotalPassed,
			TotalFailed:  row.TotalFailed,
			TotalSkipped: row.TotalSkipped,
			SuccessRate:  row.SuccessRate,
			Duration:     time.Duration(row.DurationMS) * time.Millisecond,
		}
	}
	return out, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
