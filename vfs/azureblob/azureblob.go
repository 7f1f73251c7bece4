// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package azureblob implements vfs.FS over Azure Blob Storage using
// Azure/azure-storage-blob-go/azblob, grounded on the original source's
// AzureBlob storage backend (storage_manager/storage_azure_blob.cc):
// credentials resolved from AZURE_STORAGE_ACCOUNT/AZURE_STORAGE_KEY,
// directories represented by a ".dir.marker" placeholder blob, writes
// staged as blocks with deterministic ids and made visible only by
// put_block_list (Commit).
package azureblob

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/vfs"
)

// dirMarker is the placeholder blob name suffix that represents an
// otherwise-empty "directory" prefix, matching the original backend's
// MARKER constant.
const dirMarker = ".dir.marker"

func init() {
	vfs.Register("az", func(u *url.URL) (vfs.FS, string, error) {
		account := os.Getenv("AZURE_STORAGE_ACCOUNT")
		key := os.Getenv("AZURE_STORAGE_KEY")
		if account == "" || key == "" {
			return nil, "", errs.New(errs.InvalidArgument, "AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY must be set for az:// URIs")
		}
		endpoint := os.Getenv("AZURE_BLOB_ENDPOINT")
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", account)
		}
		cred, err := azblob.NewSharedKeyCredential(account, key)
		if err != nil {
			return nil, "", errs.Wrap(err, errs.InvalidArgument, "azure shared key credential")
		}
		pipeline := azblob.NewPipeline(cred, azblob.PipelineOptions{})

		// az://<container>@<account>.blob.core.windows.net/<path>
		container := u.User.Username()
		if container == "" {
			return nil, "", errs.New(errs.InvalidArgument, "az:// uri missing <container>@ segment")
		}
		serviceURL, err := url.Parse(endpoint)
		if err != nil {
			return nil, "", errs.Wrap(err, errs.InvalidArgument, "azure blob endpoint")
		}
		containerURL := azblob.NewContainerURL(*serviceURL.ResolveReference(&url.URL{Path: container}), pipeline)
		return New(containerURL), u.Path, nil
	})
}

// FS is the Azure Blob vfs.FS backend.
type FS struct {
	container azblob.ContainerURL

	mu      sync.Mutex
	pending map[string][]byte // blob name -> buffered unstaged bytes, cleared on Commit
}

var _ vfs.FS = (*FS)(nil)

// New wraps an already-constructed container URL.
func New(container azblob.ContainerURL) *FS {
	return &FS{container: container, pending: map[string][]byte{}}
}

func (f *FS) blobURL(path string) azblob.BlockBlobURL {
	return f.container.NewBlockBlobURL(strings.TrimPrefix(path, "/"))
}

func (f *FS) IsDir(ctx context.Context, path string) (bool, error) {
	marker := f.blobURL(strings.TrimSuffix(path, "/") + "/" + dirMarker)
	_, err := marker.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err == nil {
		return true, nil
	}
	// A prefix with children also counts as a directory.
	children, lerr := f.List(ctx, path)
	if lerr != nil {
		return false, lerr
	}
	return len(children) > 0, nil
}

func (f *FS) IsFile(ctx context.Context, path string) (bool, error) {
	_, err := f.blobURL(path).GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errs.Wrap(err, errs.IO, "azure get properties")
	}
	return true, nil
}

func (f *FS) List(ctx context.Context, path string) ([]string, error) {
	prefix := strings.TrimPrefix(strings.TrimSuffix(path, "/")+"/", "/")
	seen := map[string]bool{}
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := f.container.ListBlobsHierarchySegment(ctx, marker, "/", azblob.ListBlobsSegmentOptions{Prefix: prefix})
		if err != nil {
			return nil, errs.Wrap(err, errs.IO, "azure list blobs")
		}
		for _, b := range resp.Segment.BlobItems {
			name := strings.TrimPrefix(b.Name, prefix)
			if name != "" && name != dirMarker {
				seen[name] = true
			}
		}
		for _, p := range resp.Segment.BlobPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(p.Name, prefix), "/")
			if name != "" {
				seen[name] = true
			}
		}
		marker = resp.NextMarker
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return names, nil
}

func (f *FS) CreateDir(ctx context.Context, path string) error {
	marker := f.blobURL(strings.TrimSuffix(path, "/") + "/" + dirMarker)
	_, err := marker.Upload(ctx, bytes.NewReader(nil), azblob.BlobHTTPHeaders{}, azblob.Metadata{}, azblob.BlobAccessConditions{}, azblob.DefaultAccessTier, nil, azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
	if err != nil {
		return errs.Wrap(err, errs.IO, "azure create dir marker")
	}
	return nil
}

func (f *FS) DeleteDir(ctx context.Context, path string) error {
	children, err := f.List(ctx, path)
	if err != nil {
		return err
	}
	prefix := strings.TrimSuffix(path, "/")
	for _, c := range children {
		if err := f.DeleteFile(ctx, prefix+"/"+c); err != nil {
			return err
		}
	}
	return f.DeleteFile(ctx, prefix+"/"+dirMarker)
}

func (f *FS) FileSize(ctx context.Context, path string) (int64, error) {
	props, err := f.blobURL(path).GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return 0, errs.Wrap(err, errs.IO, "azure get properties")
	}
	return props.ContentLength(), nil
}

// Read implements small- and large-read protocols uniformly via the SDK's
// range download.
func (f *FS) Read(ctx context.Context, path string, offset int64, buf []byte) error {
	resp, err := f.blobURL(path).Download(ctx, offset, int64(len(buf)), azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return errs.Wrap(err, errs.IO, "azure range download")
	}
	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()
	data, err := ioutil.ReadAll(body)
	if err != nil {
		return errs.Wrap(err, errs.IO, "azure read body")
	}
	if len(data) != len(buf) {
		return errs.Newf(errs.IO, "azure short read: got %d of %d bytes at offset %d", len(data), len(buf), offset)
	}
	copy(buf, data)
	return nil
}

// Append buffers buf in memory, to be staged as blocks on Commit — matching
// the original backend's deferred put_block_list commit protocol.
func (f *FS) Append(ctx context.Context, path string, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[path] = append(f.pending[path], buf...)
	return nil
}

// Commit stages the buffered bytes as deterministically-ID'd blocks and
// issues the block-list commit, making the blob visible.
func (f *FS) Commit(ctx context.Context, path string) error {
	f.mu.Lock()
	data := f.pending[path]
	delete(f.pending, path)
	f.mu.Unlock()

	if len(data) == 0 {
		return nil
	}

	const blockSize = 100 << 20 // Azure block blob limit: blocks <= 100 MiB
	blob := f.blobURL(path)
	var blockIDs []string
	for i, offset := 0, 0; offset < len(data); i, offset = i+1, offset+blockSize {
		end := offset + blockSize
		if end > len(data) {
			end = len(data)
		}
		id := blockID(path, i)
		if _, err := blob.StageBlock(ctx, id, bytes.NewReader(data[offset:end]), azblob.LeaseAccessConditions{}, nil, azblob.ClientProvidedKeyOptions{}); err != nil {
			return errs.Wrapf(err, errs.IO, "azure stage block %d of %s", i, path)
		}
		blockIDs = append(blockIDs, id)
	}
	if _, err := blob.CommitBlockList(ctx, blockIDs, azblob.BlobHTTPHeaders{}, azblob.Metadata{}, azblob.BlobAccessConditions{}, azblob.DefaultAccessTier, nil, azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{}); err != nil {
		return errs.Wrapf(err, errs.IO, "azure commit block list for %s", path)
	}
	return nil
}

func (f *FS) DeleteFile(ctx context.Context, path string) error {
	_, err := f.blobURL(path).Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{})
	if err != nil && !isNotFound(err) {
		return errs.Wrap(err, errs.IO, "azure delete blob")
	}
	return nil
}

func (f *FS) SupportsLocking() bool { return false }

// blockID derives a deterministic, base64-ok block id from the blob path
// and block index, so retried uploads of the same block overwrite rather
// than accumulate (the original backend's generate_block_ids).
func blockID(path string, index int) string {
	raw := fmt.Sprintf("%08d-%s", index, path)
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%-64s", raw)[:64]))
}

func isNotFound(err error) bool {
	if se, ok := err.(azblob.StorageError); ok {
		return se.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
