// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package vfs

import (
	"net/url"
	"strings"

	"github.com/moleculax/tileengine/errs"
)

// Factory builds an FS for a parsed URI and returns the backend-local root
// path that subsequent FS calls should be relative to.
type Factory func(u *url.URL) (FS, string, error)

var schemes = map[string]Factory{}

// Register adds a backend factory for a URI scheme (without the "://").
// Backend packages call this from their init(); a backend is only wired
// into the binary by importing its package, the same
// RegisterStorage/NewStorage pattern storage.go uses.
func Register(scheme string, f Factory) {
	schemes[scheme] = f
}

// Open dispatches uri on its scheme and returns the backend FS plus the
// backend-local path to operate on. A bare path with no scheme is treated as file://.
func Open(uri string) (FS, string, error) {
	scheme, rest := splitScheme(uri)
	if scheme == "" {
		scheme = "file"
	}
	f, ok := schemes[scheme]
	if !ok {
		return nil, "", errs.Newf(errs.Unsupported, "no vfs backend registered for scheme %q", scheme)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", errs.Wrap(err, errs.InvalidArgument, "parsing uri")
	}
	if u.Scheme == "" {
		u.Scheme = "file"
		u.Path = rest
	}
	return f(u)
}

func splitScheme(uri string) (scheme, rest string) {
	i := strings.Index(uri, "://")
	if i < 0 {
		return "", uri
	}
	return uri[:i], uri[i+3:]
}
