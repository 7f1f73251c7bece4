// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package hdfs implements vfs.FS over HDFS using colinmarc/hdfs/v2.
package hdfs

import (
	"context"
	"net/url"
	"os"
	"path"
	"sort"

	gohdfs "github.com/colinmarc/hdfs/v2"

	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/vfs"
)

func init() {
	vfs.Register("hdfs", func(u *url.URL) (vfs.FS, string, error) {
		nameNode := u.Host
		client, err := gohdfs.New(nameNode)
		if err != nil {
			return nil, "", errs.Wrapf(err, errs.IO, "connecting to hdfs namenode %s", nameNode)
		}
		return &FS{client: client}, u.Path, nil
	})
}

// FS is the HDFS vfs.FS backend.
type FS struct {
	client *gohdfs.Client
}

var _ vfs.FS = (*FS)(nil)

// New wraps an already-connected HDFS client.
func New(client *gohdfs.Client) *FS { return &FS{client: client} }

func (f *FS) IsDir(ctx context.Context, p string) (bool, error) {
	fi, err := f.client.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(err, errs.IO, "hdfs stat")
	}
	return fi.IsDir(), nil
}

func (f *FS) IsFile(ctx context.Context, p string) (bool, error) {
	fi, err := f.client.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(err, errs.IO, "hdfs stat")
	}
	return !fi.IsDir(), nil
}

func (f *FS) List(ctx context.Context, p string) ([]string, error) {
	entries, err := f.client.ReadDir(p)
	if err != nil {
		return nil, errs.Wrap(err, errs.IO, "hdfs readdir")
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names, nil
}

func (f *FS) CreateDir(ctx context.Context, p string) error {
	if err := f.client.MkdirAll(p, 0o755); err != nil {
		return errs.Wrap(err, errs.IO, "hdfs mkdir")
	}
	return nil
}

func (f *FS) DeleteDir(ctx context.Context, p string) error {
	if err := f.client.RemoveAll(p); err != nil {
		return errs.Wrap(err, errs.IO, "hdfs rmdir")
	}
	return nil
}

func (f *FS) FileSize(ctx context.Context, p string) (int64, error) {
	fi, err := f.client.Stat(p)
	if err != nil {
		return 0, errs.Wrap(err, errs.IO, "hdfs stat")
	}
	return fi.Size(), nil
}

func (f *FS) Read(ctx context.Context, p string, offset int64, buf []byte) error {
	file, err := f.client.Open(p)
	if err != nil {
		return errs.Wrap(err, errs.IO, "hdfs open")
	}
	defer file.Close()
	n, err := file.ReadAt(buf, offset)
	if n != len(buf) {
		return errs.Wrapf(err, errs.IO, "hdfs short read: got %d of %d bytes at offset %d", n, len(buf), offset)
	}
	return nil
}

func (f *FS) Append(ctx context.Context, p string, buf []byte) error {
	exists, err := f.IsFile(ctx, p)
	if err != nil {
		return err
	}
	if !exists {
		if err := f.client.MkdirAll(path.Dir(p), 0o755); err != nil {
			return errs.Wrap(err, errs.IO, "hdfs mkdir parent")
		}
		w, err := f.client.Create(p)
		if err != nil {
			return errs.Wrap(err, errs.IO, "hdfs create")
		}
		defer w.Close()
		_, err = w.Write(buf)
		if err != nil {
			return errs.Wrap(err, errs.IO, "hdfs write")
		}
		return nil
	}
	w, err := f.client.Append(p)
	if err != nil {
		return errs.Wrap(err, errs.IO, "hdfs append open")
	}
	defer w.Close()
	if _, err := w.Write(buf); err != nil {
		return errs.Wrap(err, errs.IO, "hdfs append write")
	}
	return nil
}

func (f *FS) Commit(ctx context.Context, p string) error { return nil }

func (f *FS) DeleteFile(ctx context.Context, p string) error {
	if err := f.client.Remove(p); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(err, errs.IO, "hdfs remove")
	}
	return nil
}

func (f *FS) SupportsLocking() bool { return false }
