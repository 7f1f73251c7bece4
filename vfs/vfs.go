// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package vfs defines the virtual filesystem capability set that the rest
// of the engine depends on instead of any concrete backend.
// Backend-specific implementations live in sibling packages (vfs/posix,
// vfs/memfs, vfs/hdfs, vfs/azureblob); callers obtain one through Open,
// which dispatches on the URI scheme.
package vfs

import (
	"context"
)

// FS is a single capability set with backend-specific implementations.
// Every method takes a backend-local path — the scheme and host portion of
// a URI has already been stripped by Open.
type FS interface {
	// IsDir reports whether path exists and names a directory. On object
	// stores a "directory" is either a common prefix or a .dir.marker
	// placeholder object.
	IsDir(ctx context.Context, path string) (bool, error)
	// IsFile reports whether path exists and names a file/object.
	IsFile(ctx context.Context, path string) (bool, error)
	// List returns the immediate children of path.
	List(ctx context.Context, path string) ([]string, error)
	// CreateDir makes path a directory, idempotently. On object stores this
	// writes a .dir.marker placeholder.
	CreateDir(ctx context.Context, path string) error
	// DeleteDir removes path and everything under it, idempotently.
	DeleteDir(ctx context.Context, path string) error
	// FileSize returns the byte length of path.
	FileSize(ctx context.Context, path string) (int64, error)
	// Read fills buf with exactly len(buf) bytes starting at offset, or
	// fails.
	Read(ctx context.Context, path string, offset int64, buf []byte) error
	// Append appends buf to path, creating it if necessary. Object store
	// backends may buffer appended bytes until Commit.
	Append(ctx context.Context, path string, buf []byte) error
	// Commit makes pending appends to path durable and visible. For object
	// stores this issues the block-list commit; for POSIX it is an fsync.
	Commit(ctx context.Context, path string) error
	// DeleteFile unlinks path.
	DeleteFile(ctx context.Context, path string) error
	// SupportsLocking reports whether this backend can grant advisory
	// locks — true only for local POSIX.
	SupportsLocking() bool
}

// Locker is implemented by backends whose SupportsLocking returns true.
type Locker interface {
	// Lock acquires an advisory lock on path, shared or exclusive, and
	// returns a release function.
	Lock(ctx context.Context, path string, exclusive bool) (unlock func() error, err error)
}
