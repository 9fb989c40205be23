package storage

import (
	"bytes"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveList(t *testing.T) {
	s := newTestStore(t)

	records := []Record{
		{ID: "id-b", Name: "Work", Type: "file", Credentials: []byte("blob-b"), Position: 1},
		{ID: "id-a", Name: "Personal", Type: "file", Credentials: []byte("blob-a"), Position: 0},
	}
	for _, rec := range records {
		if err := s.Save(rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d records, want 2", len(got))
	}

	// Ordered by position
	if got[0].ID != "id-a" || got[1].ID != "id-b" {
		t.Errorf("records not ordered by position: %q, %q", got[0].ID, got[1].ID)
	}
	if !bytes.Equal(got[0].Credentials, []byte("blob-a")) {
		t.Errorf("Credentials = %q, want blob-a", got[0].Credentials)
	}
}

func TestSaveUpsert(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(Record{ID: "id-1", Name: "Old", Type: "file"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(Record{ID: "id-1", Name: "New", Type: "file"}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record after upsert, got %d", len(got))
	}
	if got[0].Name != "New" {
		t.Errorf("Name = %q, want New", got[0].Name)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(Record{ID: "id-1", Name: "Personal", Type: "file"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete("id-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("id-1"); err != ErrRecordNotFound {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRename(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(Record{ID: "id-1", Name: "Old", Type: "file"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Rename("id-1", "Renamed"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got[0].Name != "Renamed" {
		t.Errorf("Name = %q, want Renamed", got[0].Name)
	}

	if err := s.Rename("missing", "X"); err != ErrRecordNotFound {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s1.Save(Record{ID: "id-1", Name: "Personal", Type: "file", InitRemote: true}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "id-1" {
		t.Errorf("records did not survive reopen: %+v", got)
	}
	if !got[0].InitRemote {
		t.Error("InitRemote flag did not survive reopen")
	}

	// Upsert with the flag cleared clears it in the store too.
	got[0].InitRemote = false
	if err := s2.Save(got[0]); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err = s2.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got[0].InitRemote {
		t.Error("InitRemote flag not cleared by upsert")
	}
}
