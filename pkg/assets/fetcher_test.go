package assets

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
)

var payload = []byte("#!/bin/sh\necho managed\n")

func digestOf(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newArtifactServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/web":
			w.Write(payload)
		case "/zstd":
			encoder, err := zstd.NewWriter(nil)
			require.NoError(t, err)
			w.Header().Set("Content-Encoding", "zstd")
			w.Write(encoder.EncodeAll(payload, nil))
		case "/gzip":
			var buf bytes.Buffer
			writer := gzip.NewWriter(&buf)
			writer.Write(payload)
			writer.Close()
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(buf.Bytes())
		case "/truncated":
			w.Header().Set("Content-Length", "1000")
			w.Write([]byte("short"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetch_WritesExecutable(t *testing.T) {
	server := newArtifactServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "abcdef")

	fetcher := NewFetcher(FetcherOptions{}, logging.Nop())
	result, err := fetcher.Fetch(context.Background(), Descriptor{Name: "web", Path: path, URL: server.URL + "/web"})
	require.NoError(t, err)

	assert.Equal(t, path, result.Path)
	assert.Equal(t, int64(len(payload)), result.Size)
	assert.Equal(t, digestOf(payload), result.Digest)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, ExecutableMode, info.Mode().Perm())
	assert.NoFileExists(t, path+partialSuffix)
}

func TestFetch_DecodesCompressedBodies(t *testing.T) {
	server := newArtifactServer(t)
	fetcher := NewFetcher(FetcherOptions{}, logging.Nop())

	for _, encoding := range []string{"zstd", "gzip"} {
		t.Run(encoding, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bin")
			_, err := fetcher.Fetch(context.Background(), Descriptor{Name: encoding, Path: path, URL: server.URL + "/" + encoding})
			require.NoError(t, err)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, payload, data)
		})
	}
}

func TestFetch_FailureLeavesNoFile(t *testing.T) {
	server := newArtifactServer(t)
	fetcher := NewFetcher(FetcherOptions{}, logging.Nop())

	tests := []struct {
		name       string
		descriptor func(path string) Descriptor
		check      func(error) bool
	}{
		{
			name: "not_found",
			descriptor: func(path string) Descriptor {
				return Descriptor{Name: "missing", Path: path, URL: server.URL + "/missing"}
			},
			check: errors.IsNetworkError,
		},
		{
			name: "truncated_body",
			descriptor: func(path string) Descriptor {
				return Descriptor{Name: "truncated", Path: path, URL: server.URL + "/truncated"}
			},
			check: errors.IsNetworkError,
		},
		{
			name: "digest_mismatch",
			descriptor: func(path string) Descriptor {
				return Descriptor{Name: "web", Path: path, URL: server.URL + "/web", Digest: digestOf([]byte("other"))}
			},
			check: errors.IsValidationError,
		},
		{
			name: "unreachable",
			descriptor: func(path string) Descriptor {
				return Descriptor{Name: "web", Path: path, URL: "http://127.0.0.1:1/web"}
			},
			check: errors.IsNetworkError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bin")
			_, err := fetcher.Fetch(context.Background(), tt.descriptor(path))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
			assert.NoFileExists(t, path)
			assert.NoFileExists(t, path+partialSuffix)
		})
	}
}

func TestFetch_DigestMatch(t *testing.T) {
	server := newArtifactServer(t)
	path := filepath.Join(t.TempDir(), "bin")

	_, err := NewFetcher(FetcherOptions{}, logging.Nop()).Fetch(context.Background(),
		Descriptor{Name: "web", Path: path, URL: server.URL + "/web", Digest: digestOf(payload)})
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestFetch_ConcurrentDistinctPaths(t *testing.T) {
	server := newArtifactServer(t)
	dir := t.TempDir()
	fetcher := NewFetcher(FetcherOptions{}, logging.Nop())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := filepath.Join(dir, string(rune('a'+i)))
			_, errs[i] = fetcher.Fetch(context.Background(), Descriptor{Name: "web", Path: path, URL: server.URL + "/web"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(dir, string(rune('a'+i))))
	}
}

func TestFetch_InvalidDescriptor(t *testing.T) {
	_, err := NewFetcher(FetcherOptions{}, logging.Nop()).Fetch(context.Background(), Descriptor{Name: "web"})
	assert.True(t, errors.IsValidationError(err))
}

func TestExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	assert.False(t, Exists(path))
	require.NoError(t, os.WriteFile(path, nil, 0644))
	assert.True(t, Exists(path))
}
