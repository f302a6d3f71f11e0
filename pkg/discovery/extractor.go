// Package discovery recovers the tunnel's public hostname, either from
// configuration or by scraping the tunnel client's log.
package discovery

import (
	"context"
	"os"
	"regexp"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/metrics"
)

const (
	DefaultInterval = 2000 * time.Millisecond
	DefaultAttempts = 20
)

var hostnamePattern = regexp.MustCompile(`https?://([^ ]*trycloudflare\.com)/?`)

// MatchHostname returns the first ephemeral hostname found in text.
func MatchHostname(text string) (string, bool) {
	match := hostnamePattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

type Options struct {
	// StaticAuth and StaticDomain short-circuit polling when both are set.
	StaticAuth   string
	StaticDomain string
	LogPath      string
	Interval     time.Duration
	Attempts     int
}

type Result struct {
	Hostname string
	Attempts int
	Static   bool
	Found    bool
}

type Extractor struct {
	options Options
	logger  logging.Logger

	// replaceable in tests
	readFile func(string) ([]byte, error)
	after    func(time.Duration) <-chan time.Time
}

func NewExtractor(options Options, logger logging.Logger) *Extractor {
	if options.Interval <= 0 {
		options.Interval = DefaultInterval
	}
	if options.Attempts <= 0 {
		options.Attempts = DefaultAttempts
	}
	return &Extractor{
		options:  options,
		logger:   logger,
		readFile: os.ReadFile,
		after:    time.After,
	}
}

// Extract blocks until a hostname is found, the attempt budget runs out or
// ctx ends. Running out of attempts is not an error: Found is simply false.
func (e *Extractor) Extract(ctx context.Context) (Result, error) {
	if e.options.StaticAuth != "" && e.options.StaticDomain != "" {
		e.logger.Infof("Using configured hostname: %s", e.options.StaticDomain)
		return Result{Hostname: e.options.StaticDomain, Static: true, Found: true}, nil
	}

	result := Result{}
	for result.Attempts < e.options.Attempts {
		if result.Attempts > 0 {
			select {
			case <-ctx.Done():
				return result, errors.NewCancelledError("hostname discovery cancelled", ctx.Err())
			case <-e.after(e.options.Interval):
			}
		}

		result.Attempts++
		metrics.DiscoveryAttemptsTotal.Inc()

		content, err := e.readFile(e.options.LogPath)
		if err != nil {
			e.logger.Debugf("Log not readable yet, attempt: %d, path: %s, error: %v", result.Attempts, e.options.LogPath, err)
			continue
		}
		if hostname, ok := MatchHostname(string(content)); ok {
			e.logger.Infof("Discovered ephemeral hostname: %s, attempt: %d", hostname, result.Attempts)
			result.Hostname = hostname
			result.Found = true
			return result, nil
		}
	}

	e.logger.Warnf("No hostname found after %d attempts, path: %s", result.Attempts, e.options.LogPath)
	return result, nil
}

// Pending is resolved exactly once, when its extraction finishes.
type Pending struct {
	done   chan struct{}
	result Result
	err    error
}

// Done is closed once the result is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result blocks until the extraction finishes.
func (p *Pending) Result() (Result, error) {
	<-p.done
	return p.result, p.err
}

// Start runs Extract in the background.
func (e *Extractor) Start(ctx context.Context) *Pending {
	pending := &Pending{done: make(chan struct{})}
	go func() {
		defer close(pending.done)
		pending.result, pending.err = e.Extract(ctx)
	}()
	return pending
}
