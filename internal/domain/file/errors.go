package file

import "errors"

var (
	ErrNotFound         = errors.New("file not found")
	ErrBlobMissing      = errors.New("file content is missing")
	ErrTooLarge         = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed     = errors.New("upload failed")
	ErrUploadTimeout    = errors.New("upload timed out")
	ErrNoFiles          = errors.New("no files uploaded")
	ErrMalformedUpload  = errors.New("malformed multipart upload")
	ErrTooManyFiles     = errors.New("too many files in one upload")
	ErrStoreUnavailable = errors.New("metadata store unavailable")
	ErrIO               = errors.New("file storage i/o failure")
)
