package httpapi

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-keeper/pkg/logging"
)

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	return recorder
}

func TestHandler_Greeting(t *testing.T) {
	handler := NewHttpHandler("xiaomao", logging.Nop())

	response := get(t, handler, "/")
	assert.Equal(t, http.StatusOK, response.Code)
	assert.Equal(t, Greeting, response.Body.String())
}

func TestHandler_SubscriptionAppearsOnceSet(t *testing.T) {
	handler := NewHttpHandler("/xiaomao/", logging.Nop())

	assert.Equal(t, http.StatusNotFound, get(t, handler, "/xiaomao").Code)

	handler.SetSubscription("CnZsZXNzOi8v")
	response := get(t, handler, "/xiaomao")
	assert.Equal(t, http.StatusOK, response.Code)
	assert.Equal(t, "text/plain; charset=utf-8", response.Header().Get("Content-Type"))
	assert.Equal(t, "CnZsZXNzOi8v", response.Body.String())
}

func TestHandler_UnknownPathAndMethod(t *testing.T) {
	handler := NewHttpHandler("xiaomao", logging.Nop())

	assert.Equal(t, http.StatusNotFound, get(t, handler, "/other").Code)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestHandler_Metrics(t *testing.T) {
	handler := NewHttpHandler("xiaomao", logging.Nop())
	get(t, handler, "/")

	response := get(t, handler, MetricsPath)
	assert.Equal(t, http.StatusOK, response.Code)
	assert.Contains(t, response.Body.String(), "keeper_http_requests_total")
}

func TestServer_ServesAndShutsDown(t *testing.T) {
	server, err := NewServer(0, NewHttpHandler("xiaomao", logging.Nop()), logging.Nop())
	require.NoError(t, err)
	server.Start()

	response, err := http.Get("http://" + server.Addr() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(response.Body)
	response.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, Greeting, string(body))

	require.NoError(t, server.Shutdown(context.Background()))
	_, err = http.Get("http://" + server.Addr() + "/")
	assert.Error(t, err)
}

func TestServer_PortInUse(t *testing.T) {
	first, err := NewServer(0, http.NotFoundHandler(), logging.Nop())
	require.NoError(t, err)
	first.Start()
	defer first.Shutdown(context.Background())

	_, portText, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	_, err = NewServer(port, http.NotFoundHandler(), logging.Nop())
	assert.Error(t, err)
}
