package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient() *Client {
	return NewClient(Params{Log: zap.NewNop()})
}

func samplePayload() Payload {
	return Payload{
		Coordinates: "",
		Timestamp:   1714564800,
		GatewayMAC:  "AA:BB:CC:DD:EE:FF",
		Tags: map[string]json.RawMessage{
			"AABBCCDDEEFF": json.RawMessage(`{"rssi":-65,"timestamp":1714564790,"data":"AQID"}`),
		},
	}
}

type captured struct {
	path string
	ua   string
	body map[string]map[string]any
}

func TestSendSuccessRelaysBody(t *testing.T) {
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{path: r.URL.Path, ua: r.Header.Get("User-Agent")}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		seen <- c
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success","data":{"action":"inserted"}}`))
	}))
	defer srv.Close()

	resp := newTestClient().Send(context.Background(), Request{Endpoint: srv.URL, Timeout: time.Second, Payload: samplePayload()})

	require.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", resp.Body["result"])

	got := <-seen
	assert.Equal(t, "/record", got.path)
	assert.Equal(t, UserAgent, got.ua)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", got.body["data"]["gwmac"])
	assert.Contains(t, got.body["data"]["tags"], "AABBCCDDEEFF")
}

func TestSendClassifiesHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	resp := newTestClient().Send(context.Background(), Request{Endpoint: srv.URL + "/record", Timeout: time.Second, Payload: samplePayload()})

	assert.False(t, resp.Success)
	assert.Equal(t, "HTTP_503", resp.ErrorCode)
	assert.Equal(t, "HTTP 503: Service Unavailable", resp.ErrorMessage)
	assert.Equal(t, "error", resp.Body["result"])
}

func TestSendClassifiesInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	resp := newTestClient().Send(context.Background(), Request{Endpoint: srv.URL, Timeout: time.Second, Payload: samplePayload()})

	assert.False(t, resp.Success)
	assert.Equal(t, CodeJSONParse, resp.ErrorCode)
}

func TestSendClassifiesTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	resp := newTestClient().Send(context.Background(), Request{Endpoint: srv.URL, Timeout: 50 * time.Millisecond, Payload: samplePayload()})

	assert.False(t, resp.Success)
	assert.Equal(t, CodeTimeout, resp.ErrorCode)
}

func TestSendClassifiesConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	resp := newTestClient().Send(context.Background(), Request{Endpoint: endpoint, Timeout: time.Second, Payload: samplePayload()})

	assert.False(t, resp.Success)
	assert.Equal(t, CodeConnection, resp.ErrorCode)
}

func TestSendRejectsBadEndpoint(t *testing.T) {
	resp := newTestClient().Send(context.Background(), Request{Endpoint: "ftp://example.com", Payload: samplePayload()})
	assert.Equal(t, CodeRequest, resp.ErrorCode)
}

func TestHealthCheck(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient()
	status := client.HealthCheck(context.Background(), srv.URL+"/record", time.Second)
	assert.True(t, status.Healthy)
	assert.Equal(t, "healthy", status.Status)

	healthy.Store(false)
	status = client.HealthCheck(context.Background(), srv.URL+"/record", time.Second)
	assert.False(t, status.Healthy)
	assert.Equal(t, "HTTP 502: Bad Gateway", status.Error)
}

func TestRecordURL(t *testing.T) {
	cases := map[string]string{
		"https://network.ruuvi.com":         "https://network.ruuvi.com/record",
		"https://network.ruuvi.com/":        "https://network.ruuvi.com/record",
		"https://network.ruuvi.com/record":  "https://network.ruuvi.com/record",
		"http://localhost:9000/custom/path": "http://localhost:9000/custom/path",
	}
	for in, want := range cases {
		got, err := RecordURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := RecordURL("")
	assert.Error(t, err)
}
