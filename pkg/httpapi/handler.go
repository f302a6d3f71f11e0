// Package httpapi serves the greeting, the subscription payload and metrics.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/metrics"
)

const (
	Greeting    = "Hello world!"
	MetricsPath = "/metrics"
)

type HttpHandler struct {
	subPath string
	metrics http.Handler
	logger  logging.Logger

	mutex   sync.RWMutex
	payload string
}

func NewHttpHandler(subPath string, logger logging.Logger) *HttpHandler {
	return &HttpHandler{
		subPath: "/" + strings.Trim(subPath, "/"),
		metrics: promhttp.Handler(),
		logger:  logger,
	}
}

// SetSubscription publishes the payload; until the first call the
// subscription path answers 404.
func (h *HttpHandler) SetSubscription(payload string) {
	h.mutex.Lock()
	h.payload = payload
	h.mutex.Unlock()
	h.logger.Infof("Subscription available at %s", h.subPath)
}

func (h *HttpHandler) subscription() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.payload
}

func (h *HttpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == MetricsPath:
		h.metrics.ServeHTTP(w, r)
		return
	case r.Method != http.MethodGet && r.Method != http.MethodHead:
		h.respond(w, "other", http.StatusMethodNotAllowed, "text/plain; charset=utf-8", http.StatusText(http.StatusMethodNotAllowed))
	case path == "/":
		h.respond(w, "/", http.StatusOK, "text/html; charset=utf-8", Greeting)
	case path == h.subPath:
		payload := h.subscription()
		if payload == "" {
			h.respond(w, h.subPath, http.StatusNotFound, "text/plain; charset=utf-8", http.StatusText(http.StatusNotFound))
			return
		}
		h.respond(w, h.subPath, http.StatusOK, "text/plain; charset=utf-8", payload)
	default:
		h.respond(w, "other", http.StatusNotFound, "text/plain; charset=utf-8", http.StatusText(http.StatusNotFound))
	}
}

func (h *HttpHandler) respond(w http.ResponseWriter, label string, status int, contentType string, body string) {
	metrics.HttpRequestsTotal.WithLabelValues(label, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		h.logger.Debugf("Failed to write response, path: %s, error: %v", label, err)
	}
}
