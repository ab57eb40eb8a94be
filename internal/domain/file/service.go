package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"filedock/internal/storage/blob"
)

const (
	MaxFileSize      = 10 * 1024 * 1024 // 10 MiB
	PublicBase       = "/uploads"
	DefaultBatchSize = 20

	insertTimeout = 10 * time.Second
	// staleTempAge is how old a blob temp file must be before Audit
	// reports it as crash debris rather than an upload in flight.
	staleTempAge = time.Hour
)

// BatchPolicy decides what a multi-file upload does when one file fails.
type BatchPolicy string

const (
	// BatchAbort undoes the files already stored by the request and fails it.
	BatchAbort BatchPolicy = "abort"
	// BatchPartial keeps the successful files and reports the failures.
	BatchPartial BatchPolicy = "partial"
)

// BlobStore is the byte storage the service coordinates with.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader, limit int64) (int64, error)
	Stat(name string) (size int64, present bool, err error)
	Open(name string) (*os.File, error)
	Delete(name string) (removed bool, err error)
	Names() ([]string, error)
	StaleTemps(cutoff time.Time) ([]string, error)
}

type Options struct {
	MaxFileSize int64
	PublicBase  string
	BatchPolicy BatchPolicy
	Logger      *slog.Logger
}

// Service keeps blobs and metadata records consistent. Ordering rules:
//   - Upload writes the blob before the record, so a failed upload never
//     leaves a record without bytes (a failed insert may orphan a blob).
//   - Delete removes the blob before the record, so a crash in between leaves
//     a visible record that a repeated Delete cleans up.
type Service struct {
	repo        Repository
	blobs       BlobStore
	maxFileSize int64
	publicBase  string
	policy      BatchPolicy
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(repo Repository, blobs BlobStore, opts Options) *Service {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = MaxFileSize
	}
	if opts.PublicBase == "" {
		opts.PublicBase = PublicBase
	}
	if opts.BatchPolicy == "" {
		opts.BatchPolicy = BatchAbort
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		blobs:       blobs,
		maxFileSize: opts.MaxFileSize,
		publicBase:  strings.TrimSuffix(opts.PublicBase, "/"),
		policy:      opts.BatchPolicy,
		logger:      opts.Logger.With(slog.String("component", "file_service")),
		now:         time.Now,
	}
}

func (s *Service) MaxFileSize() int64 { return s.maxFileSize }

// Upload stores one file: blob first, then the metadata record.
func (s *Service) Upload(ctx context.Context, originalName string, r io.Reader) (*File, error) {
	name := storedName(s.now(), originalName)

	size, err := s.blobs.Put(ctx, name, r, s.maxFileSize)
	if err != nil {
		uploadsTotal.WithLabelValues("blob_failed").Inc()
		return nil, s.putError(err)
	}

	f := &File{
		StoredName:   name,
		OriginalName: originalName,
		Size:         size,
		Path:         s.publicBase + "/" + name,
	}
	// The payload is committed; the record write is bounded by its own timeout.
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insertTimeout)
	defer cancel()
	if err := s.repo.Insert(insertCtx, f); err != nil {
		uploadsTotal.WithLabelValues("insert_failed").Inc()
		inconsistenciesTotal.WithLabelValues("orphan_blob").Inc()
		s.logger.Error("metadata insert failed, blob left without record",
			slog.String("stored_name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	uploadsTotal.WithLabelValues("ok").Inc()
	uploadedBytesTotal.Add(float64(size))
	s.logger.Info("file uploaded",
		slog.String("id", f.ID),
		slog.String("stored_name", name),
		slog.Int64("size", size),
	)
	return f, nil
}

// putError maps a blob write failure onto the upload taxonomy. Errors the
// reader already classified (ErrTooLarge, ErrUploadTimeout, ErrMalformedUpload)
// pass through with their class.
func (s *Service) putError(err error) error {
	switch {
	case errors.Is(err, blob.ErrTooLarge), errors.Is(err, ErrTooLarge):
		return ErrTooLarge
	case errors.Is(err, ErrUploadTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded):
		return ErrUploadTimeout
	case errors.Is(err, ErrMalformedUpload):
		return ErrMalformedUpload
	}
	s.logger.Error("blob write failed", slog.String("error", err.Error()))
	return fmt.Errorf("%w: %w", ErrUploadFailed, err)
}

// Part is one file of a multi-file upload.
type Part struct {
	Name   string
	Reader io.Reader
}

// PartSource yields the files of a request in order and io.EOF at the end.
// Stream-level failures should already be mapped to ErrTooLarge,
// ErrUploadTimeout or ErrMalformedUpload.
type PartSource interface {
	NextPart() (*Part, error)
}

type BatchFailure struct {
	Name string
	Err  error
}

type BatchResult struct {
	Files  []*File
	Failed []BatchFailure
}

// UploadBatch uploads every part of src according to the configured policy.
// Parts are read one at a time, so a size or timeout violation stops the
// request before the rest of the payload is accepted.
func (s *Service) UploadBatch(ctx context.Context, src PartSource) (*BatchResult, error) {
	res := &BatchResult{}
	seen := 0

	for {
		part, err := src.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if s.policy == BatchAbort || seen == 0 {
				s.rollback(ctx, res.Files)
				return nil, err
			}
			res.Failed = append(res.Failed, BatchFailure{Err: err})
			break
		}
		seen++

		f, err := s.Upload(ctx, part.Name, part.Reader)
		if err == nil {
			res.Files = append(res.Files, f)
			continue
		}

		if s.policy == BatchAbort {
			s.rollback(ctx, res.Files)
			return nil, err
		}
		res.Failed = append(res.Failed, BatchFailure{Name: part.Name, Err: err})
		// The rest of the stream cannot be trusted after these.
		if errors.Is(err, ErrTooLarge) || errors.Is(err, ErrUploadTimeout) ||
			errors.Is(err, ErrMalformedUpload) || ctx.Err() != nil {
			break
		}
	}

	if seen == 0 {
		return nil, ErrNoFiles
	}
	if len(res.Files) == 0 {
		return nil, res.Failed[0].Err
	}
	return res, nil
}

// rollback removes files stored earlier in an aborted batch. It runs even if
// the request context is already done.
func (s *Service) rollback(ctx context.Context, files []*File) {
	ctx = context.WithoutCancel(ctx)
	for _, f := range files {
		if err := s.remove(ctx, f); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Error("batch rollback failed",
				slog.String("id", f.ID),
				slog.String("stored_name", f.StoredName),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Info("batch rollback removed file", slog.String("id", f.ID))
	}
}

// Listing is one entry of List: the record plus the reconciled size.
type Listing struct {
	ID         string
	Name       string
	Size       int64
	UploadedAt time.Time
	URL        string
	Missing    bool
}

// List is a reconciliation read. It prefers the live blob size and falls
// back to the recorded size when the blob is gone. It never repairs.
func (s *Service) List(ctx context.Context) ([]Listing, error) {
	files, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Listing, 0, len(files))
	for _, f := range files {
		item := Listing{
			ID:         f.ID,
			Name:       f.OriginalName,
			Size:       f.Size,
			UploadedAt: f.UploadedAt,
			URL:        f.Path,
		}

		size, present, err := s.blobs.Stat(f.StoredName)
		switch {
		case err != nil:
			s.logger.Warn("blob stat failed, using recorded size",
				slog.String("id", f.ID),
				slog.String("error", err.Error()),
			)
			item.Missing = true
		case !present:
			item.Missing = true
		default:
			item.Size = size
		}
		if item.Missing {
			inconsistenciesTotal.WithLabelValues("missing_blob").Inc()
		}
		out = append(out, item)
	}
	return out, nil
}

// Delete removes the blob, then the record. A blob that is already gone is
// fine; a blob that cannot be removed keeps the record so Delete can be retried.
func (s *Service) Delete(ctx context.Context, id string) error {
	f, err := s.repo.FindByID(ctx, id)
	if err != nil {
		deletesTotal.WithLabelValues(resultLabel(err)).Inc()
		return err
	}
	if err := s.remove(ctx, f); err != nil {
		deletesTotal.WithLabelValues(resultLabel(err)).Inc()
		return err
	}
	deletesTotal.WithLabelValues("ok").Inc()
	s.logger.Info("file deleted", slog.String("id", id))
	return nil
}

func (s *Service) remove(ctx context.Context, f *File) error {
	removed, err := s.blobs.Delete(f.StoredName)
	if err != nil {
		s.logger.Error("blob delete failed",
			slog.String("id", f.ID),
			slog.String("stored_name", f.StoredName),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if !removed {
		s.logger.Warn("blob already absent", slog.String("id", f.ID), slog.String("stored_name", f.StoredName))
	}
	return s.repo.DeleteByID(ctx, f.ID)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIO):
		return "io_error"
	default:
		return "error"
	}
}

// Download is an open blob with the record that names it.
// The caller closes Content.
type Download struct {
	File    *File
	Content *os.File
	ModTime time.Time
}

// Open looks up id and opens its blob. A record whose blob is gone yields
// ErrBlobMissing, distinct from ErrNotFound.
func (s *Service) Open(ctx context.Context, id string) (*Download, error) {
	f, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	content, err := s.blobs.Open(f.StoredName)
	if errors.Is(err, blob.ErrAbsent) {
		inconsistenciesTotal.WithLabelValues("missing_blob").Inc()
		s.logger.Warn("record without blob", slog.String("id", id), slog.String("stored_name", f.StoredName))
		return nil, ErrBlobMissing
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	d := &Download{File: f, Content: content, ModTime: f.UploadedAt}
	if info, err := content.Stat(); err == nil {
		d.ModTime = info.ModTime()
	}
	return d, nil
}

// AuditReport lists both kinds of orphans found by Audit, plus temp files
// left by interrupted writes.
type AuditReport struct {
	Records      int
	Blobs        int
	MissingBlobs []*File
	OrphanBlobs  []string
	StaleTemps   []string
}

func (r *AuditReport) Consistent() bool {
	return len(r.MissingBlobs) == 0 && len(r.OrphanBlobs) == 0 && len(r.StaleTemps) == 0
}

// Audit compares the record set with the blob directory and reports
// mismatches. It changes nothing.
func (s *Service) Audit(ctx context.Context) (*AuditReport, error) {
	files, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.blobs.Names()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	onDisk := make(map[string]bool, len(names))
	for _, n := range names {
		onDisk[n] = true
	}

	report := &AuditReport{Records: len(files), Blobs: len(names)}
	referenced := make(map[string]bool, len(files))
	for _, f := range files {
		referenced[f.StoredName] = true
		if !onDisk[f.StoredName] {
			report.MissingBlobs = append(report.MissingBlobs, f)
		}
	}
	for _, n := range names {
		if !referenced[n] {
			report.OrphanBlobs = append(report.OrphanBlobs, n)
		}
	}
	sort.Strings(report.OrphanBlobs)

	temps, err := s.blobs.StaleTemps(s.now().Add(-staleTempAge))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	sort.Strings(temps)
	report.StaleTemps = temps
	return report, nil
}
