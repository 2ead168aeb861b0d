package model

import "context"

// Uploader publishes the archived results of a finished job.
type Uploader interface {
	Upload(ctx context.Context, name string, raw []byte) error
}

type UploadCloser interface {
	Uploader
	Close() error
}
