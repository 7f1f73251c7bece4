// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package codec

func init() { Register(noneCodec{}) }

// noneCodec stores the payload verbatim.
type noneCodec struct{}

func (noneCodec) ID() CodecID { return None }

func (noneCodec) Compress(dst, src []byte, level int) ([]byte, error) {
	return append(dst, src...), nil
}

func (noneCodec) Decompress(dst, src []byte, uncompressedLen int) ([]byte, error) {
	return append(dst, src...), nil
}
