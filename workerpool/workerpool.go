// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package workerpool provides a bounded fan-out helper for parallel range
// I/O and parallel tile compression, following the errgroup.WithContext
// fan-out idiom used by api.go's ingestNodeOperationsForFields. Unlike a
// hidden global pool, a Pool is explicit state tied to a caller-held
// value rather than a hidden singleton.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool bounds the number of concurrent tasks run via Go. Its lifetime is
// whatever the caller holds it for — there is no package-level singleton.
type Pool struct {
	size int
}

// New returns a Pool that runs at most size tasks concurrently. size <= 0
// defaults to runtime.GOMAXPROCS(0).
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{size: size}
}

// Size returns the pool's concurrency bound.
func (p *Pool) Size() int { return p.size }

// Go runs each of fns with at most p.Size() running concurrently, and
// returns the first error encountered (errgroup.Group semantics): all
// other in-flight tasks are allowed to finish, but the context passed to
// each fn is canceled as soon as one fails.
func (p *Pool) Go(ctx context.Context, fns []func(ctx context.Context) error) error {
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.size)
	for _, fn := range fns {
		fn := fn
		eg.Go(func() error {
			return fn(egctx)
		})
	}
	return eg.Wait()
}
