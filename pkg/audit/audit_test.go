package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l := NewLogger(t.TempDir())
	if err := l.SetHMACKey([]byte("0123456789abcdef0123456789abcdef")); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	return l
}

func TestLogRequiresKey(t *testing.T) {
	l := NewLogger(t.TempDir())
	if err := l.LogSuccess(OpSourceAdd, SourceCLI, "src-1"); err == nil {
		t.Error("expected error when HMAC key not set")
	}
}

func TestLogWritesChainedEvents(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSuccess(OpSourceAdd, SourceCLI, "src-1"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogError(OpSourceUnlockFailed, SourceCLI, "src-1", "AUTH_FAILED", "invalid master password"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}

	filename := time.Now().UTC().Format("2006-01") + ".jsonl"
	data, err := os.ReadFile(filepath.Join(l.path, filename))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}

	var first, second Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("failed to unmarshal first record: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("failed to unmarshal second record: %v", err)
	}

	if first.Chain.Sequence != 1 || second.Chain.Sequence != 2 {
		t.Errorf("sequences = %d, %d; want 1, 2", first.Chain.Sequence, second.Chain.Sequence)
	}
	if first.Chain.PrevHash != "genesis" {
		t.Errorf("first PrevHash = %q, want genesis", first.Chain.PrevHash)
	}
	if second.Chain.PrevHash != first.Chain.HMAC {
		t.Error("second record does not chain to first")
	}
	if second.Error == nil || second.Error.Code != "AUTH_FAILED" {
		t.Errorf("error info not recorded: %+v", second.Error)
	}
}

func TestVerify(t *testing.T) {
	l := newTestLogger(t)

	for _, op := range []string{OpSourceAdd, OpSourceUnlock, OpSourceLock, OpSourceRemove} {
		if err := l.LogSuccess(op, SourceCLI, "src-1"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid chain, broken at seq %d", result.BrokenAtSeq)
	}
	if result.EventCount != 4 {
		t.Errorf("EventCount = %d, want 4", result.EventCount)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSuccess(OpSourceAdd, SourceCLI, "src-1"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogSuccess(OpSourceUnlock, SourceCLI, "src-1"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	// Rewrite the first record's operation in place
	filename := time.Now().UTC().Format("2006-01") + ".jsonl"
	logPath := filepath.Join(l.path, filename)
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	tampered := strings.Replace(string(data), OpSourceAdd, OpSourceRemove, 1)
	if err := os.WriteFile(logPath, []byte(tampered), 0600); err != nil {
		t.Fatalf("failed to write tampered log: %v", err)
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid {
		t.Error("expected tampering to be detected")
	}
	if result.BrokenAtSeq != 1 {
		t.Errorf("BrokenAtSeq = %d, want 1", result.BrokenAtSeq)
	}
}

func TestChainStatePersists(t *testing.T) {
	dir := t.TempDir()
	key := []byte("0123456789abcdef0123456789abcdef")

	l1 := NewLogger(dir)
	if err := l1.SetHMACKey(key); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	if err := l1.LogSuccess(OpSourceAdd, SourceCLI, "src-1"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	// A second logger over the same directory must continue the chain
	l2 := NewLogger(dir)
	if err := l2.SetHMACKey(key); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	if err := l2.LogSuccess(OpSourceUnlock, SourceCLI, "src-1"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	result, err := l2.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("cross-process chain broken at seq %d", result.BrokenAtSeq)
	}
	if result.EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", result.EventCount)
	}
}
