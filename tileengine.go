// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package tileengine is the top-level façade tying the engine's layers
// together: Context owns engine-wide configuration and dispatches URIs to
// a vfs.FS backend; Array owns one array's schema and opens writers,
// readers, and consolidation over it. Mirrors the Holder/Index pattern:
// a long-lived owner that resolves a name to a child resource and caches
// what the child needs for its lifetime.
package tileengine

import (
	"bytes"
	"context"

	"github.com/moleculax/tileengine/config"
	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/fragreader"
	"github.com/moleculax/tileengine/fragwriter"
	"github.com/moleculax/tileengine/logger"
	"github.com/moleculax/tileengine/readcoord"
	"github.com/moleculax/tileengine/schema"
	"github.com/moleculax/tileengine/tilecache"
	"github.com/moleculax/tileengine/vfs"

	_ "github.com/moleculax/tileengine/vfs/azureblob"
	_ "github.com/moleculax/tileengine/vfs/hdfs"
	_ "github.com/moleculax/tileengine/vfs/posix"
)

// consolidationLockName is the advisory lock file guarding Consolidate on
// backends that support locking.
const consolidationLockName = "__consolidation_lock"

// Context holds engine-wide configuration shared by every array it opens.
type Context struct {
	cfg    *config.Config
	logger logger.Logger
}

// OpenContext returns a Context. cfg and lg may be nil, in which case
// config.NewDefault() and logger.NopLogger are used.
func OpenContext(cfg *config.Config, lg logger.Logger) *Context {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if lg == nil {
		lg = logger.NopLogger
	}
	return &Context{cfg: cfg, logger: lg}
}

// Array is a handle on one array's schema and storage location.
type Array struct {
	ctx    *Context
	fs     vfs.FS
	path   string
	schema *schema.Schema
	cache  *tilecache.Cache
}

// CreateArray validates desc, persists the resulting schema at uri, and
// returns a handle on the new array. uri's scheme selects the vfs backend;
// a bare path defaults to the local filesystem.
func (c *Context) CreateArray(ctx context.Context, uri string, desc schema.Description) (*Array, error) {
	sch, err := schema.New(desc)
	if err != nil {
		return nil, err
	}
	fs, path, err := vfs.Open(uri)
	if err != nil {
		return nil, err
	}
	schemaPath := path + "/" + schema.SchemaFileName
	if _, err := fs.FileSize(ctx, schemaPath); err == nil {
		return nil, errs.WithPath(errs.SchemaConflict, uri, "array already exists")
	}
	if err := fs.CreateDir(ctx, path); err != nil {
		return nil, errs.Wrap(err, errs.IO, "tileengine: create array directory")
	}

	raw, err := sch.Marshal()
	if err != nil {
		return nil, err
	}
	if err := fs.Append(ctx, schemaPath, raw); err != nil {
		return nil, errs.Wrap(err, errs.IO, "tileengine: write schema")
	}
	if err := fs.Commit(ctx, schemaPath); err != nil {
		return nil, errs.Wrap(err, errs.IO, "tileengine: commit schema")
	}

	return &Array{ctx: c, fs: fs, path: path, schema: sch, cache: tilecache.New(int(c.cfg.TileCacheBytes))}, nil
}

// OpenArray loads an existing array's schema from uri.
func (c *Context) OpenArray(ctx context.Context, uri string) (*Array, error) {
	fs, path, err := vfs.Open(uri)
	if err != nil {
		return nil, err
	}
	schemaPath := path + "/" + schema.SchemaFileName
	sz, err := fs.FileSize(ctx, schemaPath)
	if err != nil {
		return nil, errs.WithPath(errs.SchemaConflict, uri, "array has no schema file")
	}
	raw := make([]byte, sz)
	if err := fs.Read(ctx, schemaPath, 0, raw); err != nil {
		return nil, errs.Wrap(err, errs.IO, "tileengine: read schema")
	}
	sch, err := schema.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	return &Array{ctx: c, fs: fs, path: path, schema: sch, cache: tilecache.New(int(c.cfg.TileCacheBytes))}, nil
}

// DeleteArray removes everything at uri, idempotently.
func (c *Context) DeleteArray(ctx context.Context, uri string) error {
	fs, path, err := vfs.Open(uri)
	if err != nil {
		return err
	}
	if err := fs.DeleteDir(ctx, path); err != nil {
		return errs.Wrap(err, errs.IO, "tileengine: delete array")
	}
	return nil
}

// Schema returns the array's validated, immutable schema.
func (a *Array) Schema() *schema.Schema { return a.schema }

// OpenWriter starts a new fragment write session.
func (a *Array) OpenWriter(ctx context.Context) (*fragwriter.Writer, error) {
	return fragwriter.Open(ctx, a.fs, a.path, a.schema, a.ctx.cfg, a.ctx.logger)
}

// OpenReader returns a read coordinator scanning every visible fragment.
func (a *Array) OpenReader(ctx context.Context) (*readcoord.Coordinator, error) {
	return readcoord.Open(ctx, a.fs, a.path, a.schema, a.cache)
}

// Read is a convenience wrapper around OpenReader().Scan for callers that
// don't need to reuse the Coordinator across calls.
func (a *Array) Read(ctx context.Context, subarray []int64, attrs []string) ([]fragreader.Cell, error) {
	rc, err := a.OpenReader(ctx)
	if err != nil {
		return nil, err
	}
	return rc.Scan(ctx, subarray, attrs)
}

// FullDomain returns a subarray covering every dimension's entire domain,
// for reads or Consolidate that need "everything".
func (a *Array) FullDomain() []int64 {
	out := make([]int64, 0, 2*a.schema.Rank())
	for _, d := range a.schema.Dimensions {
		out = append(out, d.Lo, d.Hi)
	}
	return out
}

// AttributeNames returns every attribute name in schema order.
func (a *Array) AttributeNames() []string {
	names := make([]string, len(a.schema.Attributes))
	for i, attr := range a.schema.Attributes {
		names[i] = attr.Name
	}
	return names
}

// Consolidate merges every visible fragment into one new fragment: a
// full-domain read-coordinator scan followed by a single fragment-writer
// emit, then deletion of the
// now-superseded fragment directories. There is no two-phase commit marker
// here — the new fragment becomes visible (its .ok sentinel lands) before
// any old fragment is deleted, so a crash mid-Consolidate leaves both old
// and new fragments present; a later read (or another Consolidate) still
// produces the correct result, since the newest fragment wins ties on
// duplicate coordinates.
func (a *Array) Consolidate(ctx context.Context) error {
	var unlock func() error
	if locker, ok := a.fs.(vfs.Locker); ok && a.fs.SupportsLocking() && !a.ctx.cfg.DisableFileLocking {
		u, err := locker.Lock(ctx, a.path+"/"+consolidationLockName, true)
		if err != nil {
			return errs.Wrap(err, errs.IO, "tileengine: acquire consolidation lock")
		}
		unlock = u
		defer unlock()
	}

	rc, err := a.OpenReader(ctx)
	if err != nil {
		return err
	}
	cells, err := rc.Scan(ctx, a.FullDomain(), a.AttributeNames())
	if err != nil {
		return err
	}
	if len(cells) == 0 {
		return nil
	}

	w, err := a.OpenWriter(ctx)
	if err != nil {
		return err
	}
	coords, attrs := cellsToAttrInputs(a.schema, cells)
	if err := w.Submit(ctx, coords, attrs); err != nil {
		return err
	}
	if err := w.Finalize(ctx); err != nil {
		return err
	}

	return a.deleteSupersededFragments(ctx, w.Dir())
}

func (a *Array) deleteSupersededFragments(ctx context.Context, keep string) error {
	names, err := a.fs.List(ctx, a.path)
	if err != nil {
		return errs.Wrap(err, errs.IO, "tileengine: list array directory")
	}
	keepName := keep[len(a.path)+1:]
	for _, name := range names {
		if name == keepName || name == schema.SchemaFileName || name == consolidationLockName {
			continue
		}
		dir := a.path + "/" + name
		isDir, err := a.fs.IsDir(ctx, dir)
		if err != nil {
			return err
		}
		if !isDir {
			continue
		}
		if err := a.fs.DeleteDir(ctx, dir); err != nil {
			return errs.Wrapf(err, errs.IO, "tileengine: delete superseded fragment %s", name)
		}
	}
	return nil
}

// cellsToAttrInputs flattens a merged cell list back into the coords +
// AttrInput shape fragwriter.Submit expects.
func cellsToAttrInputs(sch *schema.Schema, cells []fragreader.Cell) ([]int64, map[string]fragwriter.AttrInput) {
	rank := sch.Rank()
	coords := make([]int64, 0, len(cells)*rank)
	for _, c := range cells {
		coords = append(coords, c.Coord...)
	}

	attrs := make(map[string]fragwriter.AttrInput, len(sch.Attributes))
	for _, a := range sch.Attributes {
		if a.IsVariable() {
			var values bytes.Buffer
			offsets := make([]uint64, len(cells))
			for i, c := range cells {
				offsets[i] = uint64(values.Len())
				values.Write(c.Values[a.Name])
			}
			attrs[a.Name] = fragwriter.AttrInput{Values: values.Bytes(), Offsets: offsets}
		} else {
			var raw bytes.Buffer
			for _, c := range cells {
				raw.Write(c.Values[a.Name])
			}
			attrs[a.Name] = fragwriter.AttrInput{Values: raw.Bytes()}
		}
	}
	return coords, attrs
}
