// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

//go:build tiledebug

package bookkeeping

import "github.com/cespare/xxhash/v2"

// checksumEnabled gates Unmarshal's verification of the trailing checksum.
const checksumEnabled = true

func checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
