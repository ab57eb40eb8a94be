package file

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	badgerFilePrefix = []byte("file/")
	badgerSeqKey     = []byte("seq/files")
)

// badgerRecord is the stored form of File. It keeps fields that the HTTP
// representation hides.
type badgerRecord struct {
	Seq          uint64    `json:"seq"`
	ID           string    `json:"id"`
	StoredName   string    `json:"stored_name"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	Path         string    `json:"path"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type badgerRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewBadgerRepository opens (or creates) a BadgerDB metadata store in dir.
func NewBadgerRepository(dir string) (Repository, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger directory is required")
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}

	seq, err := db.GetSequence(badgerSeqKey, 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to lease insert sequence: %w", err)
	}

	return &badgerRepository{db: db, seq: seq}, nil
}

func badgerKey(id string) []byte {
	return append(append([]byte{}, badgerFilePrefix...), id...)
}

func (r *badgerRepository) Insert(ctx context.Context, f *File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := r.seq.Next()
	if err != nil {
		return r.classify(err)
	}

	f.Seq = n + 1
	f.ID = uuid.New().String()
	f.UploadedAt = time.Now().UTC().Truncate(time.Microsecond)

	val, err := json.Marshal(badgerRecord{
		Seq:          f.Seq,
		ID:           f.ID,
		StoredName:   f.StoredName,
		OriginalName: f.OriginalName,
		Size:         f.Size,
		Path:         f.Path,
		UploadedAt:   f.UploadedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode file record: %w", err)
	}

	return r.classify(r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(f.ID), val)
	}))
}

func (r *badgerRepository) ListAll(ctx context.Context) ([]*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var files []*File
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerFilePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			f, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return nil, r.classify(err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].UploadedAt.After(files[j].UploadedAt)
		}
		return files[i].Seq < files[j].Seq
	})
	return files, nil
}

func (r *badgerRepository) FindByID(ctx context.Context, id string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var f *File
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		f, err = decodeItem(item)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, r.classify(err)
	}
	return f, nil
}

func (r *badgerRepository) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(id)); err != nil {
			return err
		}
		return txn.Delete(badgerKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return r.classify(err)
}

func (r *badgerRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.db.IsClosed() {
		return fmt.Errorf("%w: badger is closed", ErrStoreUnavailable)
	}
	return nil
}

func (r *badgerRepository) Close() error {
	if err := r.seq.Release(); err != nil && !r.db.IsClosed() {
		r.db.Close()
		return fmt.Errorf("failed to release insert sequence: %w", err)
	}
	return r.db.Close()
}

func (r *badgerRepository) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) || r.db.IsClosed() {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

func decodeItem(item *badger.Item) (*File, error) {
	var rec badgerRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode file record %s: %w", item.Key(), err)
	}
	return &File{
		Seq:          rec.Seq,
		ID:           rec.ID,
		StoredName:   rec.StoredName,
		OriginalName: rec.OriginalName,
		Size:         rec.Size,
		Path:         rec.Path,
		UploadedAt:   rec.UploadedAt,
	}, nil
}
