package mockserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auditor/internal/record"
)

func newRecord(t *testing.T, id string, start time.Time) *record.Record {
	t.Helper()
	r, err := record.New(id, start)
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return r
}

func post(t *testing.T, srv *httptest.Server, instruction string, r *record.Record) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/record", bytes.NewReader([]byte(r.String())))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("X-Auditor-Instruction", instruction)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	return resp
}

func TestHandlePostRecord_AddThenDuplicateConflicts(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	r := newRecord(t, "rec-1", time.Date(2021, 12, 6, 16, 29, 43, 0, time.UTC))

	resp := post(t, srv, "add", r)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first add status = %d, want 201", resp.StatusCode)
	}

	resp = post(t, srv, "add", r)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate add status = %d, want 409", resp.StatusCode)
	}
}

func TestHandlePostRecord_UpdateMissingReturns400(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	r := newRecord(t, "rec-missing", time.Date(2021, 12, 6, 16, 29, 43, 0, time.UTC))
	resp := post(t, srv, "update", r)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("update-missing status = %d, want 400", resp.StatusCode)
	}
}

func TestHandlePostRecord_UpdateAppliesStopTime(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	r := newRecord(t, "rec-1", time.Date(2021, 12, 6, 16, 29, 43, 0, time.UTC))
	if resp := post(t, srv, "add", r); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d", resp.StatusCode)
	}

	updated := r.WithStopTime(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
	if resp := post(t, srv, "update", updated); resp.StatusCode != http.StatusCreated {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/records")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("got %d records, want 1", len(raw))
	}
	got, err := record.Parse(raw[0])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.StopTime == nil || !got.StopTime.Equal(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("stop_time = %v, want 2022-01-01", got.StopTime)
	}
}

func TestHandleListRecords_MetaContainsFilter(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	r1 := newRecord(t, "rec-1", time.Now().UTC()).WithMeta("site_id", "site_A").WithMeta("group_id", "group_1")
	r2 := newRecord(t, "rec-2", time.Now().UTC()).WithMeta("site_id", "site_B").WithMeta("group_id", "group_2")
	post(t, srv, "add", r1)
	post(t, srv, "add", r2)

	resp, err := http.Get(srv.URL + "/records?meta.group_id[contains]=group_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("got %d records, want 1", len(raw))
	}

	resp, err = http.Get(srv.URL + "/records?meta.group_id[contains]=nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	raw = nil
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("got %d records, want 0 for nonexistent group", len(raw))
	}
}

func TestHandleListRecords_StartTimeRangeFilter(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	base := time.Date(2022, 8, 8, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		r := newRecord(t, recID(h), base.Add(time.Duration(h)*time.Hour))
		post(t, srv, "add", r)
	}

	resp, err := http.Get(srv.URL + "/records?start_time[gt]=2022-08-08T11:30:00Z")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 12 {
		t.Fatalf("got %d records, want 12", len(raw))
	}
}

func recID(h int) string {
	return "rec-" + time.Date(2022, 8, 8, h, 0, 0, 0, time.UTC).Format("15")
}

func TestHandleListRecords_DefaultOrderingIsStopTimeDescThenRecordIDAsc(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	start := time.Date(2022, 8, 8, 0, 0, 0, 0, time.UTC)

	// rec-b and rec-a share the same (zero) stop_time, so they fall back
	// to the record_id tie-break; rec-c has the latest stop_time and must
	// sort first.
	recB := newRecord(t, "rec-b", start)
	recA := newRecord(t, "rec-a", start)
	recC := newRecord(t, "rec-c", start).WithStopTime(start.Add(2 * time.Hour))
	post(t, srv, "add", recB)
	post(t, srv, "add", recA)
	post(t, srv, "add", recC)

	resp, err := http.Get(srv.URL + "/records")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 3 {
		t.Fatalf("got %d records, want 3", len(raw))
	}

	want := []string{"rec-c", "rec-a", "rec-b"}
	for i, w := range want {
		got, err := record.Parse(raw[i])
		if err != nil {
			t.Fatalf("Parse[%d]: %v", i, err)
		}
		if got.RecordID != w {
			t.Fatalf("position %d record_id = %q, want %q", i, got.RecordID, w)
		}
	}
}

func TestSetFailure_Always409(t *testing.T) {
	s := New()
	s.SetFailure(FailureAlways409)
	srv := httptest.NewServer(s)
	defer srv.Close()

	r := newRecord(t, "rec-1", time.Now().UTC())
	resp := post(t, srv, "add", r)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 under FailureAlways409", resp.StatusCode)
	}
}

func TestHandleHealthCheck(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health_check")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
