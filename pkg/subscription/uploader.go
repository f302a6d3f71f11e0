package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
)

const DefaultUploadTimeout = 10 * time.Second

type UploaderOptions struct {
	UploadURL     string
	ProjectURL    string
	SubPath       string
	AutoAccess    bool
	AutoAccessURL string
	Client        *http.Client
}

// Uploader talks to the optional aggregation service and keep-alive endpoint.
// Every call is a no-op when its endpoint is not configured.
type Uploader struct {
	options UploaderOptions
	logger  logging.Logger
}

func NewUploader(options UploaderOptions, logger logging.Logger) *Uploader {
	if options.Client == nil {
		options.Client = &http.Client{Timeout: DefaultUploadTimeout}
	}
	options.UploadURL = strings.TrimSuffix(options.UploadURL, "/")
	options.ProjectURL = strings.TrimSuffix(options.ProjectURL, "/")
	return &Uploader{
		options: options,
		logger:  logger,
	}
}

// DeleteNodes withdraws the links of a previous run, read from subFile.
func (u *Uploader) DeleteNodes(ctx context.Context, subFile string) error {
	if u.options.UploadURL == "" {
		return nil
	}
	payload, err := os.ReadFile(subFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewIOError("failed to read previous subscription", err).WithContext("path", subFile)
	}
	nodes, err := DecodeNodes(payload)
	if err != nil {
		return errors.NewValidationError("previous subscription is not base64", err).WithContext("path", subFile)
	}
	if len(nodes) == 0 {
		return nil
	}

	if err := u.post(ctx, u.options.UploadURL+"/api/delete-nodes", map[string]interface{}{"nodes": nodes}); err != nil {
		return err
	}
	u.logger.Infof("Deleted %d previous nodes", len(nodes))
	return nil
}

// UploadSubscription registers PROJECT_URL/SUB_PATH with the aggregation service.
func (u *Uploader) UploadSubscription(ctx context.Context) error {
	if u.options.UploadURL == "" || u.options.ProjectURL == "" {
		return nil
	}
	subscriptionURL := u.options.ProjectURL + "/" + u.options.SubPath
	if err := u.post(ctx, u.options.UploadURL+"/api/add-subscriptions", map[string]interface{}{"subscription": []string{subscriptionURL}}); err != nil {
		return err
	}
	u.logger.Infof("Subscription uploaded successfully, url: %s", subscriptionURL)
	return nil
}

// AddVisitTask asks the keep-alive service to visit PROJECT_URL periodically.
func (u *Uploader) AddVisitTask(ctx context.Context) error {
	if !u.options.AutoAccess || u.options.ProjectURL == "" || u.options.AutoAccessURL == "" {
		return nil
	}
	if err := u.post(ctx, u.options.AutoAccessURL, map[string]interface{}{"url": u.options.ProjectURL}); err != nil {
		return err
	}
	u.logger.Infof("Automatic access task added successfully")
	return nil
}

func (u *Uploader) post(ctx context.Context, url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.NewInternalError("failed to encode request", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return errors.NewValidationError("invalid upload url", err).WithContext("url", url)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := u.options.Client.Do(request)
	if err != nil {
		return errors.NewNetworkError("upload request failed", err).WithContext("url", url)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return errors.NewNetworkError("unexpected upload status", nil).WithContext("url", url).WithContext("status", response.StatusCode)
	}
	return nil
}
