// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
// Package config defines the engine's context-wide tuning knobs, loaded from
// TOML with environment-variable overrides, following the familiar
// TOML-tagged struct with package-level defaults.
package config

import (
	"os"
	"strconv"

	"github.com/pelletier/go-toml"
)

const (
	// DefaultTileCacheBytes is the default byte budget for the tile LRU
	// cache.
	DefaultTileCacheBytes = 1 << 30 // 1 GiB

	// DefaultInMemorySortThresholdBytes is the default spill threshold for
	// the fragment writer: past it, tiles that can no longer grow are
	// flushed early. No external sort is performed.
	DefaultInMemorySortThresholdBytes = 128 << 20 // 128 MiB

	// DefaultObjectStoreBlockSize is the default DownloadBufferSize; the
	// default UploadBufferSize is MaxObjectStoreBlockSize.
	DefaultObjectStoreBlockSize = 8 << 20 // 8 MiB

	// MaxObjectStoreBlockSize is the hard ceiling on block size: object
	// stores are chunked into blocks no larger than 100 MiB.
	MaxObjectStoreBlockSize = 100 << 20

	// DefaultSmallReadThreshold is a 4 MiB small-read cutoff. No backend
	// consults it: the az:// backend serves every Read with one range
	// download, whatever its size.
	DefaultSmallReadThreshold = 4 << 20 // 4 MiB
)

// Config holds engine-wide tuning, parsed from TOML and then overridden by
// recognized environment variables.
type Config struct {
	// WorkerPoolSize bounds concurrent range I/O and tile compression.
	// Zero means "use runtime.GOMAXPROCS(0)".
	WorkerPoolSize int `toml:"worker-pool-size"`

	// TileCacheBytes is the byte budget for the per-array tile LRU cache.
	TileCacheBytes int64 `toml:"tile-cache-bytes"`

	// InMemorySortThresholdBytes bounds how much a fragment write buffers
	// before every full dense tile and sealed sparse tile is flushed early.
	InMemorySortThresholdBytes int64 `toml:"in-memory-sort-threshold-bytes"`

	// DownloadBufferSize and UploadBufferSize are object-store I/O sizes.
	// Overridden by TILEDB_DOWNLOAD_BUFFER_SIZE / TILEDB_UPLOAD_BUFFER_SIZE.
	// No backend reads them: the az:// backend stages fixed 100 MiB blocks.
	DownloadBufferSize int64 `toml:"download-buffer-size"`
	UploadBufferSize   int64 `toml:"upload-buffer-size"`

	// DisableFileLocking skips POSIX advisory locks entirely. Overridden by
	// TILEDB_DISABLE_FILE_LOCKING=1.
	DisableFileLocking bool `toml:"disable-file-locking"`

	// KeepFileHandlesOpen is parsed and stored but no backend reads it: the
	// file:// backend opens the file on every Read. Overridden by
	// TILEDB_KEEP_FILE_HANDLES_OPEN=1.
	KeepFileHandlesOpen bool `toml:"keep-file-handles-open"`

	// Azure holds Azure Blob credentials, normally supplied via
	// AZURE_STORAGE_ACCOUNT / AZURE_STORAGE_KEY / AZURE_BLOB_ENDPOINT. The
	// az:// backend reads those environment variables itself and does not
	// consult this field.
	Azure AzureConfig `toml:"azure"`

	// HDFS holds an HDFS namenode address. The hdfs:// backend takes the
	// namenode from the URI's host and does not consult this field.
	HDFS HDFSConfig `toml:"hdfs"`
}

// AzureConfig carries Azure Blob Storage credentials.
type AzureConfig struct {
	StorageAccount string `toml:"storage-account"`
	StorageKey     string `toml:"storage-key"`
	BlobEndpoint   string `toml:"blob-endpoint"`
}

// HDFSConfig carries the HDFS namenode address.
type HDFSConfig struct {
	NameNode string `toml:"namenode"`
}

// NewDefault returns a Config populated with the engine's built-in defaults.
func NewDefault() *Config {
	return &Config{
		TileCacheBytes:             DefaultTileCacheBytes,
		InMemorySortThresholdBytes: DefaultInMemorySortThresholdBytes,
		DownloadBufferSize:         DefaultObjectStoreBlockSize,
		UploadBufferSize:           MaxObjectStoreBlockSize,
	}
}

// Load reads a TOML config file from path, falling back to defaults for
// anything the file doesn't set, then applies environment overrides.
func Load(path string) (*Config, error) {
	c := NewDefault()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := toml.Unmarshal(b, c); err != nil {
			return nil, err
		}
	}
	c.applyEnv()
	return c, nil
}

// applyEnv overlays the engine's recognized environment variables on top of
// whatever the TOML file (or defaults) set.
func (c *Config) applyEnv() {
	if v := os.Getenv("AZURE_STORAGE_ACCOUNT"); v != "" {
		c.Azure.StorageAccount = v
	}
	if v := os.Getenv("AZURE_STORAGE_KEY"); v != "" {
		c.Azure.StorageKey = v
	}
	if v := os.Getenv("AZURE_BLOB_ENDPOINT"); v != "" {
		c.Azure.BlobEndpoint = v
	}
	if v := os.Getenv("TILEDB_DOWNLOAD_BUFFER_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.DownloadBufferSize = n
		}
	}
	if v := os.Getenv("TILEDB_UPLOAD_BUFFER_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.UploadBufferSize = n
		}
	}
	if os.Getenv("TILEDB_DISABLE_FILE_LOCKING") == "1" {
		c.DisableFileLocking = true
	}
	if os.Getenv("TILEDB_KEEP_FILE_HANDLES_OPEN") == "1" {
		c.KeepFileHandlesOpen = true
	}
}
