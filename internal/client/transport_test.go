package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	perr "auditor/internal/platform/errors"
	"auditor/internal/record"
)

func newTransportAgainst(t *testing.T, srv *httptest.Server) *Transport {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}
	tr, err := NewTransport(Options{Host: u.Hostname(), Port: port, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return tr
}

func sampleRecord(t *testing.T) *record.Record {
	t.Helper()
	r, err := record.New("rec-1", time.Date(2021, 12, 6, 16, 29, 43, 0, time.UTC))
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return r
}

func TestTransport_AddSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/record" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tr := newTransportAgainst(t, srv)
	if err := tr.Add(t.Context(), sampleRecord(t)); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestTransport_AddConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	tr := newTransportAgainst(t, srv)
	err := tr.Add(t.Context(), sampleRecord(t))
	if perr.CodeOf(err) != perr.ErrorCodeRecordExists {
		t.Fatalf("Add error code = %v, want ErrorCodeRecordExists", perr.CodeOf(err))
	}
}

func TestTransport_UpdateBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := newTransportAgainst(t, srv)
	err := tr.Update(t.Context(), sampleRecord(t))
	if perr.CodeOf(err) != perr.ErrorCodeRecordNotFound {
		t.Fatalf("Update error code = %v, want ErrorCodeRecordNotFound", perr.CodeOf(err))
	}
	if !perr.Retryable(err) {
		t.Fatalf("RecordNotFound on update must be retryable (ADD/UPDATE race)")
	}
}

func TestTransport_GetParsesRecordArray(t *testing.T) {
	r := sampleRecord(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/records" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]json.RawMessage{json.RawMessage(r.String())})
	}))
	defer srv.Close()

	tr := newTransportAgainst(t, srv)
	got, err := tr.Get(t.Context())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || !got[0].Equal(r) {
		t.Fatalf("Get = %+v, want a single record equal to %+v", got, r)
	}
}

func TestTransport_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health_check" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := newTransportAgainst(t, srv)
	ok, err := tr.HealthCheck(t.Context())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if !ok {
		t.Fatalf("HealthCheck = false, want true")
	}
}

func TestTransport_ConnectionRefusedClassifiesAsConnectionError(t *testing.T) {
	tr, err := NewTransport(Options{Host: "127.0.0.1", Port: 1, Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	err = tr.Add(t.Context(), sampleRecord(t))
	if perr.CodeOf(err) != perr.ErrorCodeConnection {
		t.Fatalf("error code = %v, want ErrorCodeConnection", perr.CodeOf(err))
	}
	if !perr.Retryable(err) {
		t.Fatalf("connection errors must be retryable")
	}
}

func TestNewTransport_RequiresHostAndPort(t *testing.T) {
	if _, err := NewTransport(Options{}); err == nil {
		t.Fatalf("expected error for missing host/port")
	}
}

func TestNewTransport_TLSRequiresAllThreePaths(t *testing.T) {
	_, err := NewTransport(Options{
		Host: "localhost",
		Port: 8443,
		TLS:  TLSOptions{Enabled: true, CACertPath: "ca.pem"},
	})
	if err == nil || !strings.Contains(err.Error(), "use_tls requires") {
		t.Fatalf("expected fail-fast error for partial TLS config, got %v", err)
	}
}
