// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package memfs is an in-memory vfs.FS used by tests in place of a real
// object store, keeping the test double in its own package that
// implements the real interface, the same as other "mock" packages here.
package memfs

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/vfs"
)

func init() {
	vfs.Register("mem", func(u *url.URL) (vfs.FS, string, error) {
		return Shared(), u.Path, nil
	})
}

// FS is an in-memory filesystem. The zero value is not usable (its maps are
// nil); use New for an isolated instance or Shared for a process-wide singleton (useful
// when a test drives the engine purely through mem:// URIs).
type FS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

var _ vfs.FS = (*FS)(nil)

// New returns an empty in-memory FS.
func New() *FS {
	return &FS{files: map[string][]byte{}, dirs: map[string]bool{"/": true}}
}

var sharedOnce sync.Once
var sharedFS *FS

// Shared returns a process-wide memfs instance, so that multiple mem://
// URIs resolved independently (e.g. via vfs.Open in different components)
// observe the same filesystem.
func Shared() *FS {
	sharedOnce.Do(func() { sharedFS = New() })
	return sharedFS
}

func clean(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(path, "/")
}

func (f *FS) IsDir(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[clean(path)], nil
}

func (f *FS) IsFile(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[clean(path)]
	return ok, nil
}

func (f *FS) List(ctx context.Context, path string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := clean(path)
	if prefix != "/" {
		prefix += "/"
	}
	seen := map[string]bool{}
	for p := range f.files {
		if rel := strings.TrimPrefix(p, prefix); rel != p && rel != "" {
			seen[strings.SplitN(rel, "/", 2)[0]] = true
		}
	}
	for p := range f.dirs {
		if rel := strings.TrimPrefix(p, prefix); rel != p && rel != "" {
			seen[strings.SplitN(rel, "/", 2)[0]] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FS) CreateDir(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[clean(path)] = true
	return nil
}

func (f *FS) DeleteDir(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := clean(path)
	delete(f.dirs, prefix)
	for p := range f.dirs {
		if strings.HasPrefix(p, prefix+"/") {
			delete(f.dirs, p)
		}
	}
	for p := range f.files {
		if strings.HasPrefix(p, prefix+"/") {
			delete(f.files, p)
		}
	}
	return nil
}

func (f *FS) FileSize(ctx context.Context, path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[clean(path)]
	if !ok {
		return 0, errs.Newf(errs.IO, "no such file %q", path)
	}
	return int64(len(b)), nil
}

func (f *FS) Read(ctx context.Context, path string, offset int64, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[clean(path)]
	if !ok {
		return errs.Newf(errs.IO, "no such file %q", path)
	}
	if offset < 0 || offset+int64(len(buf)) > int64(len(b)) {
		return errs.Newf(errs.IO, "read out of range: offset=%d len=%d size=%d", offset, len(buf), len(b))
	}
	copy(buf, b[offset:offset+int64(len(buf))])
	return nil
}

func (f *FS) Append(ctx context.Context, path string, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := clean(path)
	f.files[key] = append(f.files[key], buf...)
	return nil
}

func (f *FS) Commit(ctx context.Context, path string) error { return nil }

func (f *FS) DeleteFile(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, clean(path))
	return nil
}

func (f *FS) SupportsLocking() bool { return false }
