// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package codec

import (
	"bytes"

	"github.com/pierrec/lz4/v4"
)

func init() { Register(lz4Codec{}) }

// lz4Codec wraps pierrec/lz4/v4, as used elsewhere across the example pack.
type lz4Codec struct{}

func (lz4Codec) ID() CodecID { return LZ4 }

func (lz4Codec) Compress(dst, src []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	opts := []lz4.Option{lz4.CompressionLevelOption(lz4CompressionLevel(level))}
	if err := w.Apply(opts...); err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return append(dst, buf.Bytes()...), nil
}

func (lz4Codec) Decompress(dst, src []byte, uncompressedLen int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	buf := bytes.NewBuffer(dst)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4CompressionLevel(level int) lz4.CompressionLevel {
	switch {
	case level <= 0:
		return lz4.Fast
	case level <= 3:
		return lz4.Level1
	case level <= 6:
		return lz4.Level5
	default:
		return lz4.Level9
	}
}
