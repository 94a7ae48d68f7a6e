// Package mockserver implements a small in-memory stand-in for the AUDITOR
// server, used by integration tests and cmd/auditor-mockd to drive
// end-to-end scenarios against a real socket.
package mockserver

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"auditor/internal/platform/logger"
	str "auditor/internal/platform/strings"
	"auditor/internal/record"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Failure is a canned failure mode the server can be configured to apply
// to every POST /record request, so retry and failure scenarios can be
// driven deterministically.
type Failure int

const (
	// FailureNone applies no injected failure; requests are served normally.
	FailureNone Failure = iota
	// FailureAlways409 always answers POST /record with 409 Conflict.
	FailureAlways409
	// FailureAlways400 always answers POST /record with 400 Bad Request.
	FailureAlways400
	// FailureTimeout never responds, relying on the caller's timeout to fire.
	FailureTimeout
)

// Server is the mock AUDITOR HTTP server: an in-memory record table behind
// the six wire endpoints, reusing go-chi/chi + go-chi/cors the same way the
// ambient stack's own API surface does, here serving the counterparty
// side of the wire protocol instead.
type Server struct {
	Log logger.Logger

	mu      sync.Mutex
	records map[string]*record.Record
	failure Failure

	handler http.Handler
}

// New returns a ready-to-serve mock AUDITOR server.
func New() *Server {
	s := &Server{
		Log:     *logger.Named("mockserver"),
		records: make(map[string]*record.Record),
	}
	s.handler = s.routes()
	return s
}

// SetFailure configures the canned failure mode applied to subsequent
// POST /record requests.
func (s *Server) SetFailure(f Failure) {
	s.mu.Lock()
	s.failure = f
	s.mu.Unlock()
}

// ServeHTTP implements http.Handler, so Server can back an httptest.Server
// directly or be wrapped by a real *http.Server (cmd/auditor-mockd).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func (s *Server) routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	mux.Get("/health_check", s.handleHealthCheck)
	mux.Post("/record", s.handlePostRecord)
	mux.Get("/records", s.handleListRecords)
	mux.Get("/records/started/since/{ts}", s.handleStartedSince)
	mux.Get("/records/stopped/since/{ts}", s.handleStoppedSince)
	return mux
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePostRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	failure := s.failure
	s.mu.Unlock()

	if failure == FailureTimeout {
		<-r.Context().Done()
		return
	}
	if failure == FailureAlways409 {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if failure == FailureAlways400 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rec, err := record.Parse(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	instruction := r.Header.Get("X-Auditor-Instruction")

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[rec.RecordID]
	switch instruction {
	case "update":
		if !exists {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		merged := mergeUpdate(existing, rec)
		s.records[rec.RecordID] = merged
	default: // "add" or unspecified defaults to add semantics
		if exists {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.records[rec.RecordID] = rec
	}
	w.WriteHeader(http.StatusCreated)
}

// mergeUpdate applies incoming's mutable fields onto existing, keeping
// record_id and start_time exactly as first ADDed; record_id is immutable
// after its first ADD.
func mergeUpdate(existing, incoming *record.Record) *record.Record {
	out := *incoming
	out.RecordID = existing.RecordID
	out.StartTime = existing.StartTime
	return &out
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	all := make([]*record.Record, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}
	s.mu.Unlock()

	defaultSort(all)
	filtered := applyQuery(all, r.URL.Query())
	writeRecords(w, filtered)
}

func (s *Server) handleStartedSince(w http.ResponseWriter, r *http.Request) {
	ts, err := time.Parse(time.RFC3339, chi.URLParam(r, "ts"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	var out []*record.Record
	for _, rec := range s.records {
		if !rec.StartTime.Before(ts) {
			out = append(out, rec)
		}
	}
	s.mu.Unlock()
	defaultSort(out)
	writeRecords(w, out)
}

func (s *Server) handleStoppedSince(w http.ResponseWriter, r *http.Request) {
	ts, err := time.Parse(time.RFC3339, chi.URLParam(r, "ts"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	var out []*record.Record
	for _, rec := range s.records {
		if rec.StopTime != nil && !rec.StopTime.Before(ts) {
			out = append(out, rec)
		}
	}
	s.mu.Unlock()
	defaultSort(out)
	writeRecords(w, out)
}

// defaultSort applies the documented default ordering used whenever no
// explicit sort_by is requested: stop_time descending (records with no
// stop_time sort last), then record_id ascending as a stable tie-break.
func defaultSort(recs []*record.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		si, sj := stopOrZero(recs[i]), stopOrZero(recs[j])
		if !si.Equal(sj) {
			return si.After(sj)
		}
		return recs[i].RecordID < recs[j].RecordID
	})
}

func stopOrZero(r *record.Record) time.Time {
	if r.StopTime == nil {
		return time.Time{}
	}
	return *r.StopTime
}

func writeRecords(w http.ResponseWriter, recs []*record.Record) {
	w.Header().Set("Content-Type", "application/json")
	raw := make([]json.RawMessage, len(recs))
	for i, r := range recs {
		raw[i] = json.RawMessage(r.String())
	}
	_ = json.NewEncoder(w).Encode(raw)
}

// applyQuery filters records against the simple predicate grammar the
// builder emits: field[op]=value, meta.<key>[contains]=v1,v2, sort_by/order,
// limit. This is intentionally a small reference matcher; the real
// server's query engine is out of scope for a client library, but advanced
// query scenarios still need something to query against.
func applyQuery(recs []*record.Record, values map[string][]string) []*record.Record {
	out := recs
	for key, vals := range values {
		for _, val := range vals {
			out = filterOne(out, key, val)
		}
	}

	if sortField := first(values["sort_by"]); sortField != "" {
		desc := strings.EqualFold(first(values["order"]), "desc")
		sort.SliceStable(out, func(i, j int) bool {
			less := fieldValue(out[i], sortField) < fieldValue(out[j], sortField)
			if desc {
				return !less
			}
			return less
		})
	}

	if limStr := first(values["limit"]); limStr != "" {
		if n, ok := parseLimit(limStr); ok && n < len(out) {
			out = out[:n]
		}
	}
	return out
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func parseLimit(s string) (int, bool) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func fieldValue(r *record.Record, field string) string {
	switch field {
	case "start_time":
		return r.StartTime.Format(time.RFC3339Nano)
	case "stop_time":
		if r.StopTime == nil {
			return ""
		}
		return r.StopTime.Format(time.RFC3339Nano)
	case "record_id":
		return r.RecordID
	default:
		return ""
	}
}

func filterOne(recs []*record.Record, key, predicate string) []*record.Record {
	if key == "record_id" {
		var out []*record.Record
		for _, r := range recs {
			if r.RecordID == predicate {
				out = append(out, r)
			}
		}
		return out
	}
	bracket := strings.IndexByte(key, '[')
	if bracket < 0 || !str.HasSuffix(key, "]") {
		return recs
	}
	field := key[:bracket]
	op := key[bracket+1 : len(key)-1]

	if strings.HasPrefix(field, "meta.") {
		metaKey := strings.TrimPrefix(field, "meta.")
		wanted := strings.Split(predicate, ",")
		var out []*record.Record
		for _, r := range recs {
			if containsAll(r.Meta[metaKey], wanted) {
				out = append(out, r)
			}
		}
		return out
	}

	var out []*record.Record
	for _, r := range recs {
		if matchComparison(r, field, op, predicate) {
			out = append(out, r)
		}
	}
	return out
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func matchComparison(r *record.Record, field, op, value string) bool {
	switch field {
	case "start_time", "stop_time":
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return false
		}
		var subject *time.Time
		if field == "start_time" {
			subject = &r.StartTime
		} else {
			subject = r.StopTime
		}
		if subject == nil {
			return false
		}
		return compareTime(*subject, op, t)
	case "record_id":
		return op == "equals" && r.RecordID == value
	default:
		return true
	}
}

func compareTime(have time.Time, op string, want time.Time) bool {
	switch op {
	case "gt":
		return have.After(want)
	case "gte":
		return !have.Before(want)
	case "lt":
		return have.Before(want)
	case "lte":
		return !have.After(want)
	case "equals":
		return have.Equal(want)
	default:
		return false
	}
}
