package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
)

const (
	DefaultPrimaryMetaURL  = "https://ipapi.co/json/"
	DefaultFallbackMetaURL = "http://ip-api.com/json/"
	DefaultMetaTimeout     = 3 * time.Second

	UnknownISP = "Unknown"
)

type MetaOptions struct {
	PrimaryURL  string
	FallbackURL string
	Timeout     time.Duration
	Client      *http.Client
}

// MetaResolver names the host's network as <country>_<org>.
type MetaResolver struct {
	options MetaOptions
	logger  logging.Logger
}

func NewMetaResolver(options MetaOptions, logger logging.Logger) *MetaResolver {
	if options.PrimaryURL == "" {
		options.PrimaryURL = DefaultPrimaryMetaURL
	}
	if options.FallbackURL == "" {
		options.FallbackURL = DefaultFallbackMetaURL
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultMetaTimeout
	}
	if options.Client == nil {
		options.Client = &http.Client{}
	}
	return &MetaResolver{
		options: options,
		logger:  logger,
	}
}

type ipapiResponse struct {
	CountryCode string `json:"country_code"`
	Org         string `json:"org"`
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	CountryCode string `json:"countryCode"`
	Org         string `json:"org"`
}

// Resolve never fails; it falls back to UnknownISP.
func (r *MetaResolver) Resolve(ctx context.Context) string {
	var primary ipapiResponse
	if err := r.get(ctx, r.options.PrimaryURL, &primary); err == nil {
		if primary.CountryCode != "" && primary.Org != "" {
			return primary.CountryCode + "_" + primary.Org
		}
	} else {
		r.logger.Debugf("Primary meta lookup failed: %v", err)
	}

	var fallback ipAPIResponse
	if err := r.get(ctx, r.options.FallbackURL, &fallback); err == nil {
		if fallback.Status == "success" && fallback.CountryCode != "" && fallback.Org != "" {
			return fallback.CountryCode + "_" + fallback.Org
		}
	} else {
		r.logger.Debugf("Fallback meta lookup failed: %v", err)
	}

	r.logger.Warnf("Could not resolve network meta info, using %s", UnknownISP)
	return UnknownISP
}

func (r *MetaResolver) get(ctx context.Context, url string, target interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, r.options.Timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.NewValidationError("invalid meta url", err).WithContext("url", url)
	}
	response, err := r.options.Client.Do(request)
	if err != nil {
		return errors.NewNetworkError("meta request failed", err).WithContext("url", url)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return errors.NewNetworkError("unexpected meta status", nil).WithContext("url", url).WithContext("status", response.StatusCode)
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return errors.NewNetworkError("invalid meta response", err).WithContext("url", url)
	}
	return nil
}
