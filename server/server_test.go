package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/physx-runtime/errors"
	"github.com/wippyai/physx-runtime/metrics"
	"github.com/wippyai/physx-runtime/runtime"
)

type fakeService struct {
	initErr    error
	destroyErr error
	mu         sync.Mutex
	ready      bool
	inits      int
	destroys   int
}

func (f *fakeService) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	if f.initErr != nil {
		return f.initErr
	}
	f.ready = true
	return nil
}

func (f *fakeService) Destroy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys++
	f.ready = false
	return f.destroyErr
}

func (f *fakeService) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeService) Status() runtime.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ready {
		return runtime.Status{State: "ready", Mode: "auto", ResolvedMode: "interpreted", Resources: 4}
	}
	return runtime.Status{State: "uninitialized", Mode: "auto"}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestMux_Lifecycle(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc, Options{})

	if rec := do(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before init = %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/initialize")
	if rec.Code != http.StatusOK {
		t.Fatalf("initialize = %d: %s", rec.Code, rec.Body)
	}
	var st runtime.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "ready" || st.Resources != 4 {
		t.Fatalf("status after init = %+v", st)
	}

	if rec := do(t, h, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz after init = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/destroy")
	if rec.Code != http.StatusOK {
		t.Fatalf("destroy = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/status")
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "uninitialized" {
		t.Fatalf("status after destroy = %+v", st)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestMux_InitializeErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{errors.Unsupported(errors.PhaseProbe, "compiler"), http.StatusNotImplemented, "unsupported"},
		{errors.ArtifactLoad("accelerated", nil), http.StatusBadGateway, "artifact_load"},
		{errors.ModuleEntry("px_init", nil), http.StatusInternalServerError, "module_entry"},
		{errors.ResourceConstruction("foundation", nil), http.StatusInternalServerError, "resource_construction"},
		{errors.AlreadyExists(errors.PhaseRuntime, "runtime"), http.StatusConflict, "already_exists"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, ""},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewMux(&fakeService{initErr: tt.err}, Options{})
			rec := do(t, h, http.MethodPost, "/initialize")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Kind != tt.kind || body.Code != tt.status {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestMux_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	col, err := metrics.New(reg)
	if err != nil {
		t.Fatal(err)
	}
	h := NewMux(&fakeService{}, Options{Gatherer: reg, Metrics: col})

	do(t, h, http.MethodGet, "/healthz")
	rec := do(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `physx_http_requests_total{method="GET",path="/healthz",status="200"} 1`) {
		t.Fatalf("metrics output missing request counter:\n%s", rec.Body)
	}

	if rec := do(t, NewMux(&fakeService{}, Options{}), http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without gatherer = %d", rec.Code)
	}
}

func TestMux_CORS(t *testing.T) {
	h := NewMux(&fakeService{}, Options{AllowedOrigins: []string{"http://viewer.local"}})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://viewer.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://viewer.local" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://elsewhere.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestMux_CORSDisabledWithoutOrigins(t *testing.T) {
	h := NewMux(&fakeService{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://viewer.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, ln, NewMux(&fakeService{}, Options{}), nil)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
