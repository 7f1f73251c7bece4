// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package posix implements vfs.FS over the local filesystem, following
// fragment.go's direct os/syscall file handling, including its use of
// syscall.Flock for advisory locking.
package posix

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"syscall"

	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/vfs"
)

func init() {
	vfs.Register("file", func(u *url.URL) (vfs.FS, string, error) {
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return New(), path, nil
	})
}

// FS is the local-disk vfs.FS backend.
type FS struct{}

// New returns a posix-backed FS.
func New() *FS { return &FS{} }

var _ vfs.FS = (*FS)(nil)
var _ vfs.Locker = (*FS)(nil)

func (f *FS) IsDir(ctx context.Context, path string) (bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(err, errs.IO, "stat")
	}
	return fi.IsDir(), nil
}

func (f *FS) IsFile(ctx context.Context, path string) (bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(err, errs.IO, "stat")
	}
	return !fi.IsDir(), nil
}

func (f *FS) List(ctx context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.IO, "readdir")
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func (f *FS) CreateDir(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errs.Wrap(err, errs.IO, "mkdir")
	}
	return nil
}

func (f *FS) DeleteDir(ctx context.Context, path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errs.Wrap(err, errs.IO, "rmdir")
	}
	return nil
}

func (f *FS) FileSize(ctx context.Context, path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, errs.Wrap(err, errs.IO, "stat")
	}
	return fi.Size(), nil
}

func (f *FS) Read(ctx context.Context, path string, offset int64, buf []byte) error {
	file, err := os.Open(path)
	if err != nil {
		return errs.Wrap(err, errs.IO, "open for read")
	}
	defer file.Close()
	n, err := file.ReadAt(buf, offset)
	if n != len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return errs.Wrapf(err, errs.IO, "short read: got %d of %d bytes at offset %d", n, len(buf), offset)
	}
	return nil
}

func (f *FS) Append(ctx context.Context, path string, buf []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(err, errs.IO, "mkdir parent")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errs.Wrap(err, errs.IO, "open for append")
	}
	defer file.Close()
	if _, err := file.Write(buf); err != nil {
		return errs.Wrap(err, errs.IO, "append write")
	}
	return nil
}

func (f *FS) Commit(ctx context.Context, path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(err, errs.IO, "open for sync")
	}
	defer file.Close()
	if err := file.Sync(); err != nil {
		return errs.Wrap(err, errs.IO, "fsync")
	}
	return nil
}

func (f *FS) DeleteFile(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(err, errs.IO, "unlink")
	}
	return nil
}

func (f *FS) SupportsLocking() bool { return true }

// Lock acquires a syscall.Flock advisory lock on path, the same flock
// usage fragment.go relies on.
func (f *FS) Lock(ctx context.Context, path string, exclusive bool) (func() error, error) {
	mode := syscall.LOCK_SH
	if exclusive {
		mode = syscall.LOCK_EX
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.Wrap(err, errs.IO, "open for lock")
	}
	if err := syscall.Flock(int(file.Fd()), mode|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, errs.Wrapf(err, errs.IO, "flock %s", path)
	}
	return func() error {
		defer file.Close()
		return syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
	}, nil
}
