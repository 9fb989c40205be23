package mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/forest6511/sourcectl/internal/storage"
	"github.com/forest6511/sourcectl/pkg/search"
	"github.com/forest6511/sourcectl/pkg/sources"
	"github.com/forest6511/sourcectl/pkg/vault"
)

const testPassword = "testpassword123"

// testServer wires an MCP server over a registry holding one unlocked source
// with a single OTP-bearing entry.
func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ix := search.NewIndex()
	registry, err := sources.NewRegistry(sources.Options{Store: store, Search: ix})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	blob, err := sources.EncodeCredentials(sources.Credentials{Path: filepath.Join(t.TempDir(), "archive")})
	if err != nil {
		t.Fatalf("EncodeCredentials failed: %v", err)
	}
	id, err := registry.AddSource(sources.Descriptor{
		Name:             "Personal",
		Type:             "file",
		Credentials:      blob,
		InitialiseRemote: true,
	})
	if err != nil {
		t.Fatalf("AddSource failed: %v", err)
	}
	if err := registry.Unlock(id, testPassword); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	err = registry.EditContent(id, func(root *vault.Group) error {
		entry := vault.NewEntry("GitHub")
		entry.SetProperty("otp", "otpauth://totp/GitHub:alice?secret=JBSWY3DPEHPK3PXP", vault.KindOneTimeCode)
		root.AddEntry(entry)
		return nil
	})
	if err != nil {
		t.Fatalf("EditContent failed: %v", err)
	}

	s := &Server{
		registry: registry,
		index:    ix,
		policy:   &Policy{Version: 1, DefaultAction: ActionAllow},
	}
	return s, id
}

func TestHandleSourceList(t *testing.T) {
	s, id := testServer(t)

	_, out, err := s.handleSourceList(context.Background(), nil, SourceListInput{})
	if err != nil {
		t.Fatalf("handleSourceList failed: %v", err)
	}
	if len(out.Sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(out.Sources))
	}
	if out.Sources[0].ID != id || out.Sources[0].Status != "unlocked" {
		t.Errorf("unexpected source info: %+v", out.Sources[0])
	}

	_, out, err = s.handleSourceList(context.Background(), nil, SourceListInput{Status: "locked"})
	if err != nil {
		t.Fatalf("handleSourceList failed: %v", err)
	}
	if len(out.Sources) != 0 {
		t.Errorf("status filter leaked %d sources", len(out.Sources))
	}
}

func TestHandleSourceStatus(t *testing.T) {
	s, id := testServer(t)

	_, out, err := s.handleSourceStatus(context.Background(), nil, SourceStatusInput{ID: id})
	if err != nil {
		t.Fatalf("handleSourceStatus failed: %v", err)
	}
	if !out.Exists || out.Status != "unlocked" || out.Name != "Personal" {
		t.Errorf("unexpected status output: %+v", out)
	}

	_, out, err = s.handleSourceStatus(context.Background(), nil, SourceStatusInput{ID: "missing"})
	if err != nil {
		t.Fatalf("handleSourceStatus failed: %v", err)
	}
	if out.Exists {
		t.Error("unknown ID must report Exists=false")
	}

	if _, _, err := s.handleSourceStatus(context.Background(), nil, SourceStatusInput{}); err == nil {
		t.Error("expected error for empty ID")
	}
}

func TestHandleCodeListMasksURIs(t *testing.T) {
	s, id := testServer(t)

	_, out, err := s.handleCodeList(context.Background(), nil, CodeListInput{})
	if err != nil {
		t.Fatalf("handleCodeList failed: %v", err)
	}
	if len(out.Codes) != 1 {
		t.Fatalf("got %d codes, want 1", len(out.Codes))
	}
	code := out.Codes[0]
	if code.SourceID != id || code.EntryTitle != "GitHub" {
		t.Errorf("unexpected code info: %+v", code)
	}
	if code.MaskedURI != "otpauth://totp/GitHub:alice?****" {
		t.Errorf("MaskedURI = %q", code.MaskedURI)
	}

	// Per-source filter with unknown ID yields no codes
	_, out, err = s.handleCodeList(context.Background(), nil, CodeListInput{SourceID: "missing"})
	if err != nil {
		t.Fatalf("handleCodeList failed: %v", err)
	}
	if len(out.Codes) != 0 {
		t.Errorf("got %d codes for unknown source", len(out.Codes))
	}
}

func TestHandleSearch(t *testing.T) {
	s, id := testServer(t)

	_, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "github"})
	if err != nil {
		t.Fatalf("handleSearch failed: %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(out.Results))
	}
	if out.Results[0].SourceID != id || out.Results[0].EntryTitle != "GitHub" {
		t.Errorf("unexpected hit: %+v", out.Results[0])
	}

	if _, _, err := s.handleSearch(context.Background(), nil, SearchInput{}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestMaskCodeURI(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"otpauth://totp/X:y?secret=ABC&digits=6", "otpauth://totp/X:y?****"},
		{"otpauth://totp/X:y", "otpauth://totp/X:y"},
	}
	for _, tt := range tests {
		if got := maskCodeURI(tt.in); got != tt.want {
			t.Errorf("maskCodeURI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
