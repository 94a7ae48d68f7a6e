package record

import (
	"errors"
	"testing"
	"time"

	perr "auditor/internal/platform/errors"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return tm.UTC()
}

func TestNew_RequiresFields(t *testing.T) {
	if _, err := New("", mustTime(t, "2021-12-06T16:29:43Z")); err != ErrInsufficientParameters {
		t.Fatalf("expected ErrInsufficientParameters, got %v", err)
	}
	if _, err := New("rec-1", time.Time{}); err != ErrInsufficientParameters {
		t.Fatalf("expected ErrInsufficientParameters, got %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	r, err := New("rec-1", mustTime(t, "2021-12-06T16:29:43Z"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r = r.WithStopTime(mustTime(t, "2022-01-01T00:00:00Z")).
		WithMeta("site_id", "site_A").
		WithMeta("group_id", "group_1", "group_1").
		WithComponent(Component{Name: "Cores", Amount: 4}.WithScore(Score{Name: "HEPSPEC", Value: 10.5}))

	raw := r.String()
	got, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !r.Equal(got) {
		t.Fatalf("round trip mismatch:\n  want %s\n  got  %s", raw, got.String())
	}
}

func TestParse_MalformedRecord(t *testing.T) {
	_, err := Parse([]byte(`{"record_id":"x"}`))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord for missing start_time, got %v", err)
	}

	_, err = Parse([]byte(`{"record_id":"x","start_time":"2022-01-01T00:00:00Z","stop_time":"2021-01-01T00:00:00Z"}`))
	if perr.CodeOf(err) != perr.ErrorCodeValidation {
		t.Fatalf("expected validation error for stop_time < start_time, got %v", err)
	}
}

func TestSiteID(t *testing.T) {
	r, err := New("rec-1", mustTime(t, "2021-12-06T16:29:43Z"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.SiteID() != "" {
		t.Fatalf("expected empty site id")
	}
	r = r.WithMeta("site_id", "site_A", "site_B")
	if r.SiteID() != "site_A" {
		t.Fatalf("SiteID = %q, want site_A", r.SiteID())
	}
}

func TestWithMeta_PreservesOrderAndDuplicates(t *testing.T) {
	r, err := New("rec-1", mustTime(t, "2021-12-06T16:29:43Z"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r = r.WithMeta("k", "a").WithMeta("k", "b", "a")
	want := []string{"a", "b", "a"}
	got := r.Meta["k"]
	if len(got) != len(want) {
		t.Fatalf("meta = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("meta[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWithMeta_DoesNotMutateOriginal(t *testing.T) {
	r, err := New("rec-1", mustTime(t, "2021-12-06T16:29:43Z"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r2 := r.WithMeta("k", "v")
	if len(r.Meta) != 0 {
		t.Fatalf("original record mutated: %v", r.Meta)
	}
	if len(r2.Meta["k"]) != 1 {
		t.Fatalf("expected copy to carry the new meta value")
	}
}
