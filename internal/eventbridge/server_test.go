package eventbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/config"
	"github.com/KaioH3/negotiation-agent/internal/metrics"
	"github.com/KaioH3/negotiation-agent/internal/negotiation"
	"github.com/KaioH3/negotiation-agent/internal/responder"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	return cat
}

func testEngine(t *testing.T, cat *catalog.Catalog, opts ...negotiation.Option) *negotiation.Engine {
	t.Helper()
	factory, err := responder.NewFactory(responder.NewSimulatedBackend(cat), cat)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	engine, err := negotiation.New(cat, factory, opts...)
	if err != nil {
		t.Fatalf("negotiation.New: %v", err)
	}
	return engine
}

// readStream collects SSE data frames until the body ends.
func readStream(t *testing.T, resp *http.Response) []negotiation.Event {
	t.Helper()
	var events []negotiation.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev negotiation.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode frame %q: %v", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return events
}

func TestParseRequest(t *testing.T) {
	query := url.Values{}
	query.Set("quantities", `{"FSH013": 2500}`)
	query.Set("note", "  rush order  ")
	req, err := ParseRequest(query)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Quantities["FSH013"] != 2500 || req.Note != "rush order" {
		t.Fatalf("unexpected request %+v", req)
	}
	query.Set("quantities", "not json")
	req, err = ParseRequest(query)
	if err == nil {
		t.Fatalf("expected malformed quantities error")
	}
	if req.Quantities != nil || req.Note != "rush order" {
		t.Fatalf("expected defaults with note kept, got %+v", req)
	}
}

func TestServerLifecycleAndHealth(t *testing.T) {
	t.Parallel()
	cat := testCatalog(t)
	enabled := true
	settings := config.ServerConfig{Enabled: &enabled, Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	srv, err := NewServer(settings, testEngine(t, cat), cat)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if srv.Status() != StatusStarting {
		t.Fatalf("expected starting status, got %s", srv.Status())
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	resp, err := http.Get(srv.BaseURL() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != string(StatusReady) || health.Version != ProtocolVersion || !health.RouterReady {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestServerDisabled(t *testing.T) {
	cat := testCatalog(t)
	srv, err := NewServer(config.ServerConfig{}, testEngine(t, cat), cat)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(context.Background()); err != errServerDisabled {
		t.Fatalf("expected disabled error, got %v", err)
	}
	if _, err := NewServer(config.ServerConfig{}, nil, cat); err == nil {
		t.Fatalf("expected runner to be required")
	}
}

func TestProductsEndpoint(t *testing.T) {
	cat := testCatalog(t)
	srv, err := NewServer(config.ServerConfig{}, testEngine(t, cat), cat)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/products")
	if err != nil {
		t.Fatalf("products request: %v", err)
	}
	defer resp.Body.Close()
	var products []catalog.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) != len(cat.Products()) || products[0].Code != cat.Codes()[0] {
		t.Fatalf("unexpected products %+v", products)
	}

	post, err := http.Post(ts.URL+"/api/products", "application/json", nil)
	if err != nil {
		t.Fatalf("post products: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", post.StatusCode)
	}
}

func TestNegotiateStreamsRun(t *testing.T) {
	cat := testCatalog(t)
	m := metrics.New()
	srv, err := NewServer(config.ServerConfig{}, testEngine(t, cat, negotiation.WithMetrics(m)), cat, WithMetrics(m))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	query := url.Values{}
	query.Set("quantities", `{"FSH013": 1000}`)
	resp, err := http.Get(ts.URL + "/api/negotiate/stream?" + query.Encode())
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %s", ct)
	}
	events := readStream(t, resp)
	if len(events) < 3 {
		t.Fatalf("expected a full run, got %d events", len(events))
	}
	first, last := events[0], events[len(events)-1]
	if first.Type != negotiation.EventRFQReady || first.RFQ == nil {
		t.Fatalf("expected rfq_ready first, got %s", first.Type)
	}
	if qty := first.RFQ.Quantities()["FSH013"]; qty != 1000 {
		t.Fatalf("expected requested quantity, got %d", qty)
	}
	if last.Type != negotiation.EventDone || last.Winner == "" {
		t.Fatalf("expected done with a winner last, got %+v", last)
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) || ev.RunID != first.RunID {
			t.Fatalf("event %d: unexpected seq %d run %s", i, ev.Seq, ev.RunID)
		}
	}

	mresp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer mresp.Body.Close()
	body := new(strings.Builder)
	if _, err := bufio.NewReader(mresp.Body).WriteTo(body); err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(body.String(), `negotiator_runs_total{outcome="done"} 1`) {
		t.Fatalf("expected run counter in metrics output:\n%s", body.String())
	}
}

func TestNegotiateFallsBackOnMalformedQuantities(t *testing.T) {
	cat := testCatalog(t)
	srv, err := NewServer(config.ServerConfig{}, testEngine(t, cat), cat)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/negotiate/stream?quantities=%7Bbroken")
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	events := readStream(t, resp)
	if len(events) == 0 || events[0].RFQ == nil {
		t.Fatalf("expected rfq_ready event")
	}
	for _, line := range events[0].RFQ.Products {
		product, _ := cat.Product(line.Code)
		if line.Quantity != product.DefaultQuantity {
			t.Fatalf("%s: expected default quantity %d, got %d", line.Code, product.DefaultQuantity, line.Quantity)
		}
	}
}

func TestWatchReplaysBufferedRun(t *testing.T) {
	cat := testCatalog(t)
	router := NewRouter()
	engine := testEngine(t, cat, negotiation.WithIDs(func() string { return "run-watch" }, nil))
	srv, err := NewServer(config.ServerConfig{}, engine, cat, WithRouter(router))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if _, err := engine.Run(context.Background(), negotiation.Request{}, router); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/runs/run-watch/events")
	if err != nil {
		t.Fatalf("watch request: %v", err)
	}
	defer resp.Body.Close()
	events := readStream(t, resp)
	if len(events) == 0 {
		t.Fatalf("expected replayed events")
	}
	if events[0].Type != negotiation.EventRFQReady || events[len(events)-1].Type != negotiation.EventDone {
		t.Fatalf("unexpected replay order: first %s last %s", events[0].Type, events[len(events)-1].Type)
	}
	for _, ev := range events {
		if ev.RunID != "run-watch" {
			t.Fatalf("foreign event in replay: %+v", ev)
		}
	}
}
