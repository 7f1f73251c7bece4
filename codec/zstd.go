// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package codec

import (
	"github.com/klauspost/compress/zstd"
)

func init() { Register(zstdCodec{}) }

// zstdCodec wraps klauspost/compress/zstd, levels 1-22 mapped onto zstd's
// four predefined encoder levels.
type zstdCodec struct{}

func (zstdCodec) ID() CodecID { return Zstd }

func zstdEncoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func (zstdCodec) Compress(dst, src []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdEncoderLevel(level)))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, dst), nil
}

func (zstdCodec) Decompress(dst, src []byte, uncompressedLen int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(src, dst)
}
