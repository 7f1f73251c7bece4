// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package codec implements the tile codec: a closed, versioned set of
// compressors behind one framing format. Adding a codec bumps
// the schema version (schema.Version).
package codec

import (
	"encoding/binary"

	"github.com/moleculax/tileengine/errs"
)

// CodecID is the one-byte compressor identifier persisted in the schema's
// per-attribute record and checked against the registry at load time.
type CodecID uint8

const (
	None CodecID = iota
	Gzip
	Zstd
	LZ4
	Blosc
	RLE
)

func (id CodecID) String() string {
	switch id {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case Blosc:
		return "blosc"
	case RLE:
		return "rle"
	default:
		return "unknown"
	}
}

// Codec compresses and decompresses one tile's worth of bytes. Compress and
// Decompress must be inverses: Decompress(Compress(x)) == x byte-for-byte.
type Codec interface {
	ID() CodecID
	// Compress appends the compressed form of src to dst and returns the
	// result.
	Compress(dst, src []byte, level int) ([]byte, error)
	// Decompress appends the decompressed form of src to dst. uncompressedLen
	// is the exact original length, taken from the frame header, and is used
	// to preallocate.
	Decompress(dst, src []byte, uncompressedLen int) ([]byte, error)
}

var registry = map[CodecID]Codec{}

// Register adds a Codec to the closed registry. Called from each codec
// implementation file's init().
func Register(c Codec) {
	registry[c.ID()] = c
}

// IsRegistered reports whether id names a known codec.
func IsRegistered(id CodecID) bool {
	_, ok := registry[id]
	return ok
}

// Get returns the Codec for id, or a corruption error if id is unknown — it
// is unknown only if the schema (and therefore the data) was written by a
// newer engine version with an additional codec.
func Get(id CodecID) (Codec, error) {
	c, ok := registry[id]
	if !ok {
		return nil, errs.Newf(errs.Corruption, "unknown codec id %d", id)
	}
	return c, nil
}

// frameHeaderSize is the fixed size of the tile frame header:
// [compressed_len u64][uncompressed_len u64][codec_id u8].
const frameHeaderSize = 8 + 8 + 1

// Frame compresses src with the codec named by id at the given level and
// wraps the result in the on-disk tile frame.
func Frame(id CodecID, src []byte, level int) ([]byte, error) {
	c, err := Get(id)
	if err != nil {
		return nil, err
	}
	return FrameWith(c, src, level)
}

// FrameWith is like Frame but uses a caller-supplied Codec instance instead
// of looking one up by ID — used by attribute-type-aware codecs such as RLE,
// which need to be constructed with the attribute's element width before
// compressing (see rle.go).
func FrameWith(c Codec, src []byte, level int) ([]byte, error) {
	compressed, err := c.Compress(nil, src, level)
	if err != nil {
		return nil, errs.Wrap(err, errs.IO, "tile compression failed")
	}
	out := make([]byte, frameHeaderSize, frameHeaderSize+len(compressed))
	binary.LittleEndian.PutUint64(out[0:8], uint64(len(compressed)))
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(src)))
	out[16] = byte(c.ID())
	return append(out, compressed...), nil
}

// Unframe reverses Frame: given a complete framed byte run, it returns the
// decompressed payload.
func Unframe(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize {
		return nil, errs.New(errs.Corruption, "tile frame shorter than header")
	}
	compressedLen := binary.LittleEndian.Uint64(frame[0:8])
	uncompressedLen := binary.LittleEndian.Uint64(frame[8:16])
	id := CodecID(frame[16])
	payload := frame[frameHeaderSize:]
	if uint64(len(payload)) != compressedLen {
		return nil, errs.Newf(errs.Corruption, "tile frame payload length %d does not match header %d", len(payload), compressedLen)
	}
	c, err := Get(id)
	if err != nil {
		return nil, err
	}
	out, err := c.Decompress(make([]byte, 0, uncompressedLen), payload, int(uncompressedLen))
	if err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "tile decompression failed")
	}
	if uint64(len(out)) != uncompressedLen {
		return nil, errs.Newf(errs.Corruption, "decompressed length %d does not match header %d", len(out), uncompressedLen)
	}
	return out, nil
}

// FrameLen returns the total on-disk size of a frame wrapping a compressed
// payload of compressedLen bytes — used by the fragment writer to compute
// book-keeping offsets without re-framing.
func FrameLen(compressedLen int) int {
	return frameHeaderSize + compressedLen
}
