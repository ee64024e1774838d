package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/menucache/menucache/internal/config"
)

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewUpstreamClient(cfg)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
}

func TestNewProbeClientCoversSlowestProbe(t *testing.T) {
	cfg := &config.Config{
		Detector: config.DetectorConfig{ProbeTimeout: config.Duration(10 * time.Second)},
		Sweep:    config.SweepConfig{AssetTimeout: config.Duration(15 * time.Second)},
	}

	client := NewProbeClient(cfg)
	if client.Timeout != 15*time.Second {
		t.Fatalf("expected timeout 15s, got %s", client.Timeout)
	}
}

func TestNewProbeClientStopsRedirectLoops(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodHead, srv.URL+"/a", nil)
	if _, err := NewProbeClient(nil).Do(req); err == nil {
		t.Fatalf("expected redirect loop to fail")
	}
}

func TestCopyHeadersSkipsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive")
	src.Add("Keep-Alive", "timeout=5")
	src.Add("X-Test-Header", "1")
	src.Add("x-test-header", "2")

	dst := http.Header{}
	CopyHeaders(dst, src)

	if _, exists := dst["Connection"]; exists {
		t.Fatalf("connection header should not be copied")
	}
	if _, exists := dst["Keep-Alive"]; exists {
		t.Fatalf("keep-alive header should not be copied")
	}

	got := dst.Values("X-Test-Header")
	if len(got) != 2 {
		t.Fatalf("expected 2 values, got %v", got)
	}
}

func TestUpstreamClientSetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	resp, err := NewUpstreamClient(nil).Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if !strings.HasPrefix(got, "menucache/") {
		t.Fatalf("expected menucache user agent, got %q", got)
	}
}
