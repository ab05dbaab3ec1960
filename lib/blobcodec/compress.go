// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobcodec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression applied to a stored blob. The values
// are persisted in the content table; never renumber them.
type Tag uint8

const (
	TagNone Tag = 0
	TagLZ4  Tag = 1
	TagZstd Tag = 2
)

func (tag Tag) String() string {
	switch tag {
	case TagNone:
		return "none"
	case TagLZ4:
		return "lz4"
	case TagZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseTag parses a compression name as used in configuration.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return TagNone, nil
	case "lz4":
		return TagLZ4, nil
	case "zstd":
		return TagZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// minCompressSize is the size below which compression is not attempted.
// Frame overhead eats any gain on tiny maps.
const minCompressSize = 64

var errIncompressible = errors.New("data is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("blobcodec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("blobcodec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress picks a compression for data and applies it. A ratio of at
// least 1.5x selects zstd; at least 1.1x selects LZ4 (cheaper to
// decode for little loss); anything less is stored raw.
func Compress(data []byte) ([]byte, Tag, error) {
	if len(data) < minCompressSize {
		return data, TagNone, nil
	}

	compressed := zstdEncoder.EncodeAll(data, nil)
	ratio := float64(len(data)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return compressed, TagZstd, nil
	case ratio >= 1.1:
		lz4Compressed, err := compressLZ4(data)
		if errors.Is(err, errIncompressible) {
			return compressed, TagZstd, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return lz4Compressed, TagLZ4, nil
	default:
		return data, TagNone, nil
	}
}

// CompressWith applies a specific compression. Incompressible data is
// returned unchanged with TagNone.
func CompressWith(data []byte, tag Tag) ([]byte, Tag, error) {
	switch tag {
	case TagNone:
		return data, TagNone, nil
	case TagLZ4:
		compressed, err := compressLZ4(data)
		if errors.Is(err, errIncompressible) {
			return data, TagNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return compressed, TagLZ4, nil
	case TagZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, TagNone, nil
		}
		return compressed, TagZstd, nil
	default:
		return nil, 0, fmt.Errorf("blobcodec: unsupported compression %s", tag)
	}
}

// Decompress reverses Compress. size is the logical length recorded at
// write time and is verified.
func Decompress(stored []byte, tag Tag, size int) ([]byte, error) {
	switch tag {
	case TagNone:
		if len(stored) != size {
			return nil, fmt.Errorf("blobcodec: stored size %d does not match expected %d", len(stored), size)
		}
		return stored, nil

	case TagLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(stored, destination)
		if err != nil {
			return nil, fmt.Errorf("blobcodec: lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("blobcodec: lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil

	case TagZstd:
		result, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("blobcodec: zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("blobcodec: zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("blobcodec: unsupported compression %s", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}
