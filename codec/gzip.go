// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package codec

import (
	"bytes"
	"io"

	gzip "github.com/klauspost/compress/gzip"
)

func init() { Register(gzipCodec{}) }

// gzipCodec wraps klauspost/compress/gzip (a drop-in for stdlib
// compress/gzip; deflate), levels 1-9. The book-keeping file is gzipped
// separately by fragwriter with stdlib compress/gzip, not through this codec.
type gzipCodec struct{}

func (gzipCodec) ID() CodecID { return Gzip }

func (gzipCodec) Compress(dst, src []byte, level int) ([]byte, error) {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	buf := bytes.NewBuffer(dst)
	w, err := gzip.NewWriterLevel(buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(dst, src []byte, uncompressedLen int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf := bytes.NewBuffer(dst)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
