// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package codec

import (
	"encoding/binary"

	"github.com/moleculax/tileengine/errs"
)

// The registry's default RLE instance is byte-wise (width 1); it is what
// Get(RLE) returns, so Frame(RLE, ...) encodes with it (the fragment writer
// does so for variable-length attributes) and Unframe decodes with it —
// decoding always works regardless of which width encoded the payload, since
// width travels in the payload itself (see Decompress below).
func init() { Register(rleCodec{width: 1}) }

// rleCodec is the attribute-type-specific RLE compressor. It
// first shuffles the input by byte position within each fixed-width element
// — grounded on the byte-shuffle filter idiom from the HDF5 corpus, which
// groups identical high-order bytes together — then run-length encodes the
// shuffled stream. Element width travels in the frame as the first byte of
// the payload.
type rleCodec struct {
	width int
}

// NewRLE returns an RLE Codec that shuffles by the given element width
// before run-length encoding, for use with codec.FrameWith. width must be
// 1, 2, 4, or 8; anything else falls back to byte-wise (width 1).
func NewRLE(width int) Codec {
	return rleCodec{width: normalizeWidth(width)}
}

func (rleCodec) ID() CodecID { return RLE }

func (c rleCodec) Compress(dst, src []byte, level int) ([]byte, error) {
	width := normalizeWidth(c.width)
	shuffled := shuffle(src, width)
	runs := runLengthEncode(shuffled)
	out := append(dst, byte(width))
	return append(out, runs...), nil
}

func (rleCodec) Decompress(dst, src []byte, uncompressedLen int) ([]byte, error) {
	if len(src) < 1 {
		return nil, errs.New(errs.Corruption, "rle payload missing element width")
	}
	width := int(src[0])
	shuffled, err := runLengthDecode(src[1:], uncompressedLen)
	if err != nil {
		return nil, err
	}
	return append(dst, unshuffle(shuffled, width)...), nil
}

func normalizeWidth(w int) int {
	switch w {
	case 2, 4, 8:
		return w
	default:
		return 1
	}
}

// shuffle reorders bytes from [elem0][elem1]...[elemN] into
// [byte0 of all elems][byte1 of all elems]...
func shuffle(src []byte, width int) []byte {
	if width <= 1 || len(src)%width != 0 {
		return src
	}
	n := len(src) / width
	out := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for j := 0; j < width; j++ {
			out[j*n+i] = src[i*width+j]
		}
	}
	return out
}

func unshuffle(src []byte, width int) []byte {
	if width <= 1 || len(src)%width != 0 {
		return src
	}
	n := len(src) / width
	out := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for j := 0; j < width; j++ {
			out[i*width+j] = src[j*n+i]
		}
	}
	return out
}

// runLengthEncode writes [run_len varint][byte] pairs.
func runLengthEncode(src []byte) []byte {
	out := make([]byte, 0, len(src)/2+binary.MaxVarintLen64)
	i := 0
	var tmp [binary.MaxVarintLen64]byte
	for i < len(src) {
		j := i + 1
		for j < len(src) && src[j] == src[i] {
			j++
		}
		n := binary.PutUvarint(tmp[:], uint64(j-i))
		out = append(out, tmp[:n]...)
		out = append(out, src[i])
		i = j
	}
	return out
}

func runLengthDecode(src []byte, wantLen int) ([]byte, error) {
	out := make([]byte, 0, wantLen)
	i := 0
	for i < len(src) {
		runLen, n := binary.Uvarint(src[i:])
		if n <= 0 {
			return nil, errs.New(errs.Corruption, "rle run-length varint decode failed")
		}
		i += n
		if i >= len(src) {
			return nil, errs.New(errs.Corruption, "rle payload truncated before run byte")
		}
		b := src[i]
		i++
		for k := uint64(0); k < runLen; k++ {
			out = append(out, b)
		}
	}
	if len(out) != wantLen {
		return nil, errs.Newf(errs.Corruption, "rle decoded length %d does not match expected %d", len(out), wantLen)
	}
	return out, nil
}
