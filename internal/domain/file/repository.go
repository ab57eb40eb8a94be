package file

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"filedock/internal/database"
)

const badgerScheme = "badger://"

// Repository is the metadata store. Each call touches exactly one record
// (or reads all of them) and is atomic on its own.
type Repository interface {
	// Insert assigns ID, Seq and UploadedAt and persists the record.
	Insert(ctx context.Context, f *File) error
	// ListAll returns every record, newest first; ties keep insertion order.
	ListAll(ctx context.Context) ([]*File, error)
	FindByID(ctx context.Context, id string) (*File, error)
	DeleteByID(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// OpenRepository picks a metadata store by DSN: badger://<dir> for the
// embedded KV store, anything else goes through gorm.
func OpenRepository(ctx context.Context, dsn string, opts database.Options) (Repository, error) {
	if dir, ok := strings.CutPrefix(dsn, badgerScheme); ok {
		repo, err := NewBadgerRepository(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return repo, nil
	}

	db, err := database.Open(ctx, dsn, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if err := AutoMigrate(db); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to migrate files table: %w", err)
	}
	return NewRepository(db), nil
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&File{})
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, f *File) error {
	f.Seq = 0
	f.ID = uuid.New().String()
	f.UploadedAt = time.Now().UTC().Truncate(time.Microsecond)
	return classify(r.db.WithContext(ctx).Create(f).Error)
}

func (r *repository) ListAll(ctx context.Context) ([]*File, error) {
	var files []*File
	err := r.db.WithContext(ctx).Order("uploaded_at DESC").Order("seq ASC").Find(&files).Error
	return files, classify(err)
}

func (r *repository) FindByID(ctx context.Context, id string) (*File, error) {
	var f File
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return &f, nil
}

func (r *repository) DeleteByID(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&File{})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Ping(ctx context.Context) error {
	return classify(database.Ping(ctx, r.db))
}

func (r *repository) Close() error {
	return database.Close(r.db)
}

// classify tags connection-level failures with ErrStoreUnavailable so callers
// can tell "the store is down" from "the query failed".
func classify(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connErr),
		pgconn.Timeout(err),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone):
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
