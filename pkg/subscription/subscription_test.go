package subscription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/workdir"
)

const testUUID = "9afd1229-b893-40c1-84dd-51e7ce204913"

func testNode() Node {
	return Node{UUID: testUUID, CFIP: "cdns.doon.eu.org", CFPort: 443, Name: "gaga"}
}

type capturedRequest struct {
	Path string
	Body map[string]interface{}
}

type captureServer struct {
	mutex    sync.Mutex
	requests []capturedRequest
	status   int
}

func (c *captureServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var decoded map[string]interface{}
	_ = json.Unmarshal(body, &decoded)

	c.mutex.Lock()
	c.requests = append(c.requests, capturedRequest{Path: r.URL.Path, Body: decoded})
	status := c.status
	c.mutex.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (c *captureServer) recorded() []capturedRequest {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]capturedRequest(nil), c.requests...)
}

type payloadSink struct {
	payload string
}

func (s *payloadSink) SetSubscription(payload string) { s.payload = payload }

func TestBuild_Links(t *testing.T) {
	links, err := Build("tunnel.example.com", testNode(), "US_Example")
	require.NoError(t, err)

	assert.Equal(t, "vless://"+testUUID+"@cdns.doon.eu.org:443?encryption=none&security=tls&sni=tunnel.example.com"+
		"&fp=firefox&type=ws&host=tunnel.example.com&path=%2Fvless-argo%3Fed%3D2560#gaga-US_Example", links.VLESS)
	assert.Equal(t, "trojan://"+testUUID+"@cdns.doon.eu.org:443?security=tls&sni=tunnel.example.com"+
		"&fp=firefox&type=ws&host=tunnel.example.com&path=%2Ftrojan-argo%3Fed%3D2560#gaga-US_Example", links.Trojan)

	require.True(t, strings.HasPrefix(links.VMess, "vmess://"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(links.VMess, "vmess://"))
	require.NoError(t, err)

	var vmess map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &vmess))
	assert.Equal(t, "2", vmess["v"])
	assert.Equal(t, "gaga-US_Example", vmess["ps"])
	assert.Equal(t, "cdns.doon.eu.org", vmess["add"])
	assert.Equal(t, float64(443), vmess["port"])
	assert.Equal(t, testUUID, vmess["id"])
	assert.Equal(t, "ws", vmess["net"])
	assert.Equal(t, "tunnel.example.com", vmess["host"])
	assert.Equal(t, "tunnel.example.com", vmess["sni"])
	assert.Equal(t, "/vmess-argo?ed=2560", vmess["path"])
	assert.Equal(t, "firefox", vmess["fp"])
	assert.Equal(t, "", vmess["alpn"])
}

func TestNode_Label(t *testing.T) {
	assert.Equal(t, "gaga-US_Example", testNode().Label("US_Example"))
	assert.Equal(t, "US_Example", Node{}.Label("US_Example"))
}

func TestPayload_RoundTripsThroughDecodeNodes(t *testing.T) {
	links, err := Build("tunnel.example.com", testNode(), "Unknown")
	require.NoError(t, err)

	nodes, err := DecodeNodes([]byte(links.Payload()))
	require.NoError(t, err)
	assert.Equal(t, links.List(), nodes)

	_, err = DecodeNodes([]byte("not base64 !!"))
	assert.Error(t, err)
}

func TestMetaResolver(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"country_code":"DE","org":"Hetzner"}`))
	}))
	defer primary.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer broken.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"US","org":"Example"}`))
	}))
	defer fallback.Close()

	failed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail"}`))
	}))
	defer failed.Close()

	resolve := func(primaryURL, fallbackURL string) string {
		return NewMetaResolver(MetaOptions{PrimaryURL: primaryURL, FallbackURL: fallbackURL}, logging.Nop()).Resolve(context.Background())
	}

	assert.Equal(t, "DE_Hetzner", resolve(primary.URL, fallback.URL))
	assert.Equal(t, "US_Example", resolve(broken.URL, fallback.URL))
	assert.Equal(t, UnknownISP, resolve(broken.URL, failed.URL))
}

func TestMetaResolver_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	resolver := NewMetaResolver(MetaOptions{PrimaryURL: slow.URL, FallbackURL: slow.URL, Timeout: 50 * time.Millisecond}, logging.Nop())

	start := time.Now()
	assert.Equal(t, UnknownISP, resolver.Resolve(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestUploader_DeleteNodes(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture)
	defer server.Close()

	layout := workdir.NewLayout(t.TempDir(), nil)
	links, err := Build("old.trycloudflare.com", testNode(), "Unknown")
	require.NoError(t, err)
	require.NoError(t, layout.WriteFile(workdir.SubscriptionFile, []byte(links.Payload())))

	uploader := NewUploader(UploaderOptions{UploadURL: server.URL + "/"}, logging.Nop())
	require.NoError(t, uploader.DeleteNodes(context.Background(), layout.Path(workdir.SubscriptionFile)))

	requests := capture.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, "/api/delete-nodes", requests[0].Path)
	assert.Len(t, requests[0].Body["nodes"], 3)
}

func TestUploader_SkipsWhenUnconfigured(t *testing.T) {
	uploader := NewUploader(UploaderOptions{}, logging.Nop())

	assert.NoError(t, uploader.DeleteNodes(context.Background(), "/nonexistent/sub.txt"))
	assert.NoError(t, uploader.UploadSubscription(context.Background()))
	assert.NoError(t, uploader.AddVisitTask(context.Background()))
}

func TestUploader_DeleteNodesWithoutPreviousFile(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture)
	defer server.Close()

	uploader := NewUploader(UploaderOptions{UploadURL: server.URL}, logging.Nop())
	assert.NoError(t, uploader.DeleteNodes(context.Background(), t.TempDir()+"/sub.txt"))
	assert.Empty(t, capture.recorded())
}

func TestUploader_UploadAndVisit(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture)
	defer server.Close()

	uploader := NewUploader(UploaderOptions{
		UploadURL:     server.URL,
		ProjectURL:    "https://project.example.com/",
		SubPath:       "xiaomao",
		AutoAccess:    true,
		AutoAccessURL: server.URL + "/add-url",
	}, logging.Nop())

	require.NoError(t, uploader.UploadSubscription(context.Background()))
	require.NoError(t, uploader.AddVisitTask(context.Background()))

	requests := capture.recorded()
	require.Len(t, requests, 2)
	assert.Equal(t, "/api/add-subscriptions", requests[0].Path)
	assert.Equal(t, []interface{}{"https://project.example.com/xiaomao"}, requests[0].Body["subscription"])
	assert.Equal(t, "/add-url", requests[1].Path)
	assert.Equal(t, "https://project.example.com", requests[1].Body["url"])
}

func TestUploader_ReportsFailures(t *testing.T) {
	capture := &captureServer{status: http.StatusInternalServerError}
	server := httptest.NewServer(capture)
	defer server.Close()

	uploader := NewUploader(UploaderOptions{UploadURL: server.URL, ProjectURL: "https://p.example.com", SubPath: "s"}, logging.Nop())
	assert.Error(t, uploader.UploadSubscription(context.Background()))
}

func TestPublisher_StaticHostnameScenario(t *testing.T) {
	meta := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"country_code":"US","org":"Example"}`))
	}))
	defer meta.Close()

	layout := workdir.NewLayout(t.TempDir(), nil)
	sink := &payloadSink{}
	publisher := NewPublisher(
		testNode(),
		NewMetaResolver(MetaOptions{PrimaryURL: meta.URL, FallbackURL: meta.URL}, logging.Nop()),
		layout,
		sink,
		NewUploader(UploaderOptions{}, logging.Nop()),
		logging.Nop(),
	)

	links, err := publisher.Publish(context.Background(), "tunnel.example.com")
	require.NoError(t, err)

	written, err := os.ReadFile(layout.Path(workdir.SubscriptionFile))
	require.NoError(t, err)
	assert.Equal(t, links.Payload(), string(written))
	assert.Equal(t, links.Payload(), sink.payload)

	nodes, err := DecodeNodes(written)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.True(t, strings.HasPrefix(nodes[0], "vless://"))
	assert.True(t, strings.HasPrefix(nodes[1], "vmess://"))
	assert.True(t, strings.HasPrefix(nodes[2], "trojan://"))
	for _, node := range []string{nodes[0], nodes[2]} {
		assert.Contains(t, node, "sni=tunnel.example.com")
		assert.Contains(t, node, "host=tunnel.example.com")
		assert.Contains(t, node, "#gaga-US_Example")
	}
}
