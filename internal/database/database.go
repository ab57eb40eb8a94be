package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const maxRetryInterval = 10 * time.Second

// Options controls how Open establishes the connection.
type Options struct {
	Retries int
	Backoff time.Duration
	Logger  *slog.Logger
	LogMode logger.LogLevel
}

// IsPostgres reports whether dsn addresses a PostgreSQL server.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Connect opens a gorm handle for dsn: PostgreSQL for postgres:// URLs,
// SQLite (pure-Go driver) for anything else.
func Connect(dsn string) (*gorm.DB, error) {
	return connect(dsn, logger.Silent)
}

func connect(dsn string, mode logger.LogLevel) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:  logger.Default.LogMode(mode),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	if IsPostgres(dsn) {
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		cfg,
	)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return db, nil
}

// Open connects and pings, retrying with jittered exponential backoff so the
// service can start before its database is ready. It fails once retries run
// out or ctx ends.
func Open(ctx context.Context, dsn string, opts Options) (*gorm.DB, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	initial := opts.Backoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	mode := opts.LogMode
	if mode == 0 {
		mode = logger.Warn
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.MaxInterval = maxRetryInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	var db *gorm.DB
	attempt := 0
	connectOnce := func() error {
		conn, err := connect(dsn, mode)
		if err != nil {
			return err
		}
		if err := Ping(ctx, conn); err != nil {
			Close(conn)
			return err
		}
		db = conn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		attempt++
		log.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
	}

	if err := backoff.RetryNotify(connectOnce, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("database connect cancelled: %w", ctxErr)
		}
		return nil, fmt.Errorf("database unavailable after %d attempts: %w", attempt+1, err)
	}

	if IsPostgres(dsn) {
		log.Info("connected to PostgreSQL")
	} else {
		log.Info("using SQLite", slog.String("dsn", dsn))
	}
	return db, nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
