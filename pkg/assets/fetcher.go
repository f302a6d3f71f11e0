package assets

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/metrics"
)

// ExecutableMode is applied to every downloaded artifact.
const ExecutableMode os.FileMode = 0775

const partialSuffix = ".part"

// Descriptor names one artifact download. It is built fresh for every attempt.
type Descriptor struct {
	Name   string // artifact name on the source, e.g. "web"
	Path   string // local destination
	URL    string
	Digest string // optional hex blake3 digest, verified when set
}

type Result struct {
	Path   string
	Size   int64
	Digest string
}

// Fetcher downloads artifacts. It holds no per-download state, so concurrent
// Fetch calls for different paths are independent.
type Fetcher interface {
	Fetch(ctx context.Context, descriptor Descriptor) (Result, error)
}

type FetcherOptions struct {
	Client  *http.Client
	Timeout time.Duration // transport-level timeout when Client is nil
}

type httpFetcher struct {
	client *http.Client
	logger logging.Logger
}

func NewFetcher(options FetcherOptions, logger logging.Logger) Fetcher {
	client := options.Client
	if client == nil {
		timeout := options.Timeout
		if timeout == 0 {
			timeout = 5 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &httpFetcher{
		client: client,
		logger: logger,
	}
}

func (f *httpFetcher) Fetch(ctx context.Context, descriptor Descriptor) (Result, error) {
	result, err := f.fetch(ctx, descriptor)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(descriptor.Name, metrics.ResultError).Inc()
		f.logger.Warnf("Download failed, artifact: %s, path: %s, error: %v", descriptor.Name, descriptor.Path, err)
		return Result{}, err
	}
	metrics.DownloadsTotal.WithLabelValues(descriptor.Name, metrics.ResultSuccess).Inc()
	f.logger.Infof("Download succeeded, artifact: %s, file: %s, size: %d, blake3: %s",
		descriptor.Name, filepath.Base(result.Path), result.Size, result.Digest)
	return result, nil
}

func (f *httpFetcher) fetch(ctx context.Context, descriptor Descriptor) (Result, error) {
	if descriptor.Path == "" || descriptor.URL == "" {
		return Result{}, errors.NewValidationError("descriptor requires path and url", nil).
			WithContext("artifact", descriptor.Name)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, descriptor.URL, nil)
	if err != nil {
		return Result{}, errors.NewValidationError("invalid artifact url", err).WithContext("url", descriptor.URL)
	}
	request.Header.Set("Accept-Encoding", "zstd, gzip")

	response, err := f.client.Do(request)
	if err != nil {
		return Result{}, errors.NewNetworkError("artifact request failed", err).WithContext("url", descriptor.URL)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Result{}, errors.NewNetworkError(
			fmt.Sprintf("unexpected status %d", response.StatusCode), nil).WithContext("url", descriptor.URL)
	}

	body, closeBody, err := decodeBody(response)
	if err != nil {
		return Result{}, err
	}
	defer closeBody()

	partial := descriptor.Path + partialSuffix
	size, digest, err := writePartial(partial, body)
	if err != nil {
		os.Remove(partial)
		return Result{}, err
	}

	if descriptor.Digest != "" && descriptor.Digest != digest {
		os.Remove(partial)
		return Result{}, errors.NewValidationError("artifact digest mismatch", nil).
			WithContext("expected", descriptor.Digest).WithContext("actual", digest)
	}

	// umask may have narrowed the mode given to OpenFile
	if err := os.Chmod(partial, ExecutableMode); err != nil {
		os.Remove(partial)
		return Result{}, errors.NewIOError("failed to mark artifact executable", err).WithContext("path", partial)
	}
	if err := os.Rename(partial, descriptor.Path); err != nil {
		os.Remove(partial)
		return Result{}, errors.NewIOError("failed to move artifact into place", err).WithContext("path", descriptor.Path)
	}

	return Result{Path: descriptor.Path, Size: size, Digest: digest}, nil
}

func decodeBody(response *http.Response) (io.Reader, func(), error) {
	switch response.Header.Get("Content-Encoding") {
	case "zstd":
		decoder, err := zstd.NewReader(response.Body)
		if err != nil {
			return nil, nil, errors.NewNetworkError("failed to open zstd stream", err)
		}
		return decoder, decoder.Close, nil
	case "gzip":
		reader, err := gzip.NewReader(response.Body)
		if err != nil {
			return nil, nil, errors.NewNetworkError("failed to open gzip stream", err)
		}
		return reader, func() { reader.Close() }, nil
	default:
		return response.Body, func() {}, nil
	}
}

func writePartial(path string, body io.Reader) (int64, string, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, ExecutableMode)
	if err != nil {
		return 0, "", errors.NewIOError("failed to create artifact file", err).WithContext("path", path)
	}

	hasher := blake3.New()
	size, copyErr := io.Copy(io.MultiWriter(file, hasher), body)
	closeErr := file.Close()
	if copyErr != nil {
		return 0, "", errors.NewNetworkError("artifact transfer interrupted", copyErr).WithContext("path", path)
	}
	if closeErr != nil {
		return 0, "", errors.NewIOError("failed to flush artifact file", closeErr).WithContext("path", path)
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
