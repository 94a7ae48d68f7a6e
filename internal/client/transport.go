package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	perr "auditor/internal/platform/errors"
	"auditor/internal/platform/logger"
	"auditor/internal/query"
	"auditor/internal/record"
)

const (
	defaultTimeout  = 10 * time.Second
	contentTypeJSON = "application/json"
)

// TLSOptions carries the options required together when `use_tls` is set:
// a CA certificate (to verify the server) and a client certificate/key
// pair (mTLS).
type TLSOptions struct {
	Enabled        bool
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string
}

// Options configures a Transport.
type Options struct {
	Host    string
	Port    int
	Timeout time.Duration
	TLS     TLSOptions
}

// Transport is the thin HTTP client binding the facade to the AUDITOR wire
// protocol: Options + a single http.Client + typed status-code
// classification, minus token rotation, which this protocol has no
// equivalent of.
type Transport struct {
	http    *http.Client
	baseURL string
	log     logger.Logger
}

// NewTransport builds a Transport from opts, failing fast on malformed or
// mismatched TLS parameters.
func NewTransport(opts Options) (*Transport, error) {
	if opts.Host == "" || opts.Port == 0 {
		return nil, perr.InvalidArgf("client: host and port are required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	scheme := "http"
	httpClient := &http.Client{Timeout: timeout}

	if opts.TLS.Enabled {
		scheme = "https"
		tlsCfg, err := buildTLSConfig(opts.TLS)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}

	base := fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port)
	if _, err := url.Parse(base); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "client: invalid base url %q", base)
	}

	return &Transport{http: httpClient, baseURL: base, log: *logger.Named("client-transport")}, nil
}

func buildTLSConfig(opts TLSOptions) (*tls.Config, error) {
	if opts.CACertPath == "" || opts.ClientCertPath == "" || opts.ClientKeyPath == "" {
		return nil, perr.InvalidArgf("client: use_tls requires ca_cert_path, client_cert_path, and client_key_path together")
	}

	caPEM, err := os.ReadFile(opts.CACertPath)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "client: read ca_cert_path")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, perr.InvalidArgf("client: ca_cert_path does not contain a valid PEM certificate")
	}

	cert, err := tls.LoadX509KeyPair(opts.ClientCertPath, opts.ClientKeyPath)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "client: load client cert/key pair")
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// instructionHeader tells the server which of the two POST /record
// semantics the client intends; the path and method are identical for
// both, so intent travels out-of-band instead. See DESIGN.md for why.
const instructionHeader = "X-Auditor-Instruction"

// Add issues POST /record for a new record.
func (t *Transport) Add(ctx context.Context, r *record.Record) error {
	_, err := t.postRecord(ctx, r, "add")
	return err
}

// Update issues POST /record for an existing record.
func (t *Transport) Update(ctx context.Context, r *record.Record) error {
	_, err := t.postRecord(ctx, r, "update")
	return err
}

func (t *Transport) postRecord(ctx context.Context, r *record.Record, instruction string) (*http.Response, error) {
	body := []byte(r.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/record", bytes.NewReader(body))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "client: build request")
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set(instructionHeader, instruction)

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode == http.StatusConflict:
		return nil, perr.RecordExistsf("record %q already exists", r.RecordID)
	case resp.StatusCode == http.StatusBadRequest && instruction == "update":
		return nil, perr.RecordNotFoundf("record %q does not exist", r.RecordID)
	default:
		return nil, perr.Newf(perr.ErrorCodeUnknown, "client: unexpected status %d", resp.StatusCode)
	}
}

// Get performs GET /records?<query> with an empty query (every record).
func (t *Transport) Get(ctx context.Context) ([]*record.Record, error) {
	return t.getRecords(ctx, "/records")
}

// AdvancedQuery performs GET /records?<q.Build()>.
func (t *Transport) AdvancedQuery(ctx context.Context, q query.Builder) ([]*record.Record, error) {
	qs := q.Build()
	path := "/records"
	if qs != "" {
		path += "?" + qs
	}
	return t.getRecords(ctx, path)
}

// GetStartedSince performs GET /records/started/since/<ts>.
func (t *Transport) GetStartedSince(ctx context.Context, ts time.Time) ([]*record.Record, error) {
	return t.getRecords(ctx, "/records/started/since/"+ts.UTC().Format(time.RFC3339))
}

// GetStoppedSince performs GET /records/stopped/since/<ts>.
func (t *Transport) GetStoppedSince(ctx context.Context, ts time.Time) ([]*record.Record, error) {
	return t.getRecords(ctx, "/records/stopped/since/"+ts.UTC().Format(time.RFC3339))
}

func (t *Transport) getRecords(ctx context.Context, path string) ([]*record.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "client: build request")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, perr.Newf(perr.ErrorCodeUnknown, "client: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConnection, "client: read response body")
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "client: malformed server response")
	}

	out := make([]*record.Record, 0, len(docs))
	for _, d := range docs {
		r, err := record.Parse(d)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "client: malformed record in server response")
		}
		out = append(out, r)
	}
	return out, nil
}

// HealthCheck performs GET /health_check and reports whether the server
// answered with 200 OK.
func (t *Transport) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health_check", nil)
	if err != nil {
		return false, perr.Wrapf(err, perr.ErrorCodeUnknown, "client: build request")
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return false, classifyTransportError(err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// classifyTransportError maps any network-level failure (DNS, TCP, TLS
// handshake, timeout, write/read error) onto ErrorCodeConnection, one layer
// up from the status-code classification in postRecord/getRecords, since
// these errors never reach a status code at all.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return perr.Wrapf(err, perr.ErrorCodeConnection, "client: network error")
	}
	return perr.Wrapf(err, perr.ErrorCodeConnection, "client: connection failed")
}
