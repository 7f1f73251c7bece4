// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package vfs

import (
	"net/url"

	"github.com/moleculax/tileengine/errs"
)

// gs:// is recognized and parsed but has no backend in this build: no GCS
// SDK is present among the available dependencies. Surfacing
// errs.Unsupported here, rather than failing scheme lookup, keeps the
// failure mode explicit instead of silently omitting the scheme.
func init() {
	Register("gs", func(u *url.URL) (FS, string, error) {
		return nil, "", errs.Newf(errs.Unsupported, "gs:// backend not available (bucket=%s path=%s)", u.Host, u.Path)
	})
}
