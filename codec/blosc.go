// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package codec

import (
	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"

	"github.com/moleculax/tileengine/errs"
)

func init() { Register(bloscCodec{}) }

// blosc inner-codec ids, stored as the first byte of the blosc payload.
const (
	bloscInnerS2     byte = 0
	bloscInnerSnappy byte = 1
)

// bloscCodec emulates blosc's block-oriented, inner-codec-selectable
// framing using klauspost/compress/s2 (blosc's closest ecosystem analogue:
// a fast, block-structured compressor) with a snappy fallback inner codec,
// using golang/snappy as the fast block codec.
type bloscCodec struct{}

func (bloscCodec) ID() CodecID { return Blosc }

func (bloscCodec) Compress(dst, src []byte, level int) ([]byte, error) {
	inner := bloscInnerS2
	var payload []byte
	if level <= 1 {
		inner = bloscInnerSnappy
		payload = snappy.Encode(nil, src)
	} else {
		payload = s2.Encode(nil, src)
	}
	out := append(dst, inner)
	return append(out, payload...), nil
}

func (bloscCodec) Decompress(dst, src []byte, uncompressedLen int) ([]byte, error) {
	if len(src) < 1 {
		return nil, errs.New(errs.Corruption, "blosc payload missing inner codec id")
	}
	inner, payload := src[0], src[1:]
	switch inner {
	case bloscInnerS2:
		out, err := s2.Decode(nil, payload)
		if err != nil {
			return nil, err
		}
		return append(dst, out...), nil
	case bloscInnerSnappy:
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, err
		}
		return append(dst, out...), nil
	default:
		return nil, errs.Newf(errs.Corruption, "unknown blosc inner codec id %d", inner)
	}
}
