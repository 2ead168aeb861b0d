package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// WriteUploader writes the results archive to w, stdout by default.
type WriteUploader struct {
	w io.Writer
}

func NewWriteUploader(w io.Writer) WriteUploader {
	return WriteUploader{w: w}
}

func (u WriteUploader) Upload(_ context.Context, _ string, raw []byte) error {
	if u.w == nil {
		u.w = os.Stdout
	}
	_, err := u.w.Write(raw)
	return err
}

// OSRootUploader stores results archives in a directory.
type OSRootUploader struct {
	root *os.Root
}

func NewOSRootUploader(path string) (*OSRootUploader, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &OSRootUploader{root: root}, nil
}

func (u *OSRootUploader) Upload(ctx context.Context, name string, b []byte) error {
	if u.root == nil {
		return errors.New("root already closed")
	}

	f, err := u.root.Create(name)
	if err != nil {
		return fmt.Errorf("creating results: %w", err)
	}
	_, err = f.Write(b)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("saving results: %w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("closing results: %w", err)
	}
	slog.InfoContext(ctx, "results saved", "path", name)
	return nil
}

func (u *OSRootUploader) Close() error {
	if u.root == nil {
		return errors.New("uploader already closed")
	}
	err := u.root.Close()
	u.root = nil
	return err
}
