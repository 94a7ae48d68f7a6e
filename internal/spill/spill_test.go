package spill

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(filepath.Join(dir, "spill.db"))
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	row := Row{
		RecordID:         "rec-1",
		SiteID:           "site_A",
		Instruction:      0,
		RecordBlob:       []byte(`{"record_id":"rec-1"}`),
		RetriesRemaining: 3,
		ScheduledAfter:   sql.NullInt64{Valid: false},
	}
	if err := s.Put(ctx, row); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(got) != 1 || got[0].RecordID != "rec-1" {
		t.Fatalf("GetAll = %+v, want one row for rec-1", got)
	}

	row.RetriesRemaining = 2
	if err := s.Put(ctx, row); err != nil {
		t.Fatalf("Put (update): %v", err)
	}
	got, err = s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(got) != 1 || got[0].RetriesRemaining != 2 {
		t.Fatalf("GetAll = %+v, want upserted row with retries_remaining=2", got)
	}

	if err := s.Delete(ctx, "rec-1", "site_A", 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("GetAll = %+v, want empty after delete", got)
	}
}

func TestStart_ReopensExistingDatabase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "spill.db")

	s1 := New(path)
	if err := s1.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s1.Put(ctx, Row{RecordID: "rec-1", SiteID: "site_A", RecordBlob: []byte("{}")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := New(path)
	if err := s2.Start(ctx); err != nil {
		t.Fatalf("Start (reopen): %v", err)
	}
	defer s2.Close()

	got, err := s2.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetAll after reopen = %+v, want the row survived a restart", got)
	}
}
