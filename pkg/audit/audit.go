// Package audit provides audit logging with an HMAC chain for tamper
// detection. Every source lifecycle operation and deep-link delivery is
// recorded as one JSONL record whose HMAC covers the previous record's HMAC.
package audit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Operation types for audit logging.
const (
	// Source lifecycle operations
	OpSourceAdd          = "source.add"
	OpSourceRemove       = "source.remove"
	OpSourceRehydrate    = "source.rehydrate"
	OpSourceUnlock       = "source.unlock"
	OpSourceUnlockFailed = "source.unlock_failed"
	OpSourceLock         = "source.lock"
	OpSourceRename       = "source.rename"

	// Derived cache operations
	OpCacheRecompute       = "cache.recompute"
	OpCacheRecomputeFailed = "cache.recompute_failed"

	// Deep-link operations
	OpDeepLinkReceived  = "deeplink.received"
	OpDeepLinkDuplicate = "deeplink.duplicate"
	OpDeepLinkRejected  = "deeplink.rejected"
)

// Source identifies where the operation originated.
const (
	SourceCLI  = "cli"
	SourceMCP  = "mcp"
	SourceSync = "sync"
)

// Result indicates the outcome of an operation.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Event represents a single audit log record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation string `json:"op"`
	SubjectID string `json:"subject,omitempty"` // source ID the operation acted on

	Actor Actor `json:"actor"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Chain Chain `json:"chain"`
}

// Actor records who performed the operation.
type Actor struct {
	Source    string `json:"source"` // cli | mcp | sync
	SessionID string `json:"session_id"`
}

// ErrorInfo contains error details for failed operations.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain provides the HMAC chain for tamper detection.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger handles audit log writing with an HMAC chain.
type Logger struct {
	path       string
	hmacKey    []byte
	mu         sync.Mutex
	sequence   int64
	prevHash   string
	sessionID  string
	hmacKeySet bool
}

// NewLogger creates an audit logger writing under the given directory.
// SetHMACKey must be called before any event can be recorded.
func NewLogger(path string) *Logger {
	return &Logger{
		path:      path,
		prevHash:  "genesis",
		sessionID: generateSessionID(),
	}
}

// SetHMACKey derives and sets the HMAC key from a master key using
// HKDF-SHA256, then restores persisted chain state if present.
func (l *Logger) SetHMACKey(masterKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hkdfReader := hkdf.New(sha256.New, masterKey, nil, []byte("sourcectl-audit-v1"))
	l.hmacKey = make([]byte, 32)
	if _, err := hkdfReader.Read(l.hmacKey); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKeySet = true

	if err := l.loadChainState(); err != nil {
		// First run, or the state file was lost
		l.sequence = 0
		l.prevHash = "genesis"
	}

	return nil
}

// Log records an audit event.
func (l *Logger) Log(op, source, result, subjectID string, errInfo *ErrorInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return fmt.Errorf("audit: HMAC key not set")
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}

	event := Event{
		Version:   1,
		ID:        generateEventID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		SubjectID: subjectID,
		Actor: Actor{
			Source:    source,
			SessionID: l.sessionID,
		},
		Result: result,
		Error:  errInfo,
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(recordData(&event))
	event.Chain.HMAC = hex.EncodeToString(mac.Sum(nil))
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}

	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations.
func (l *Logger) LogSuccess(op, source, subjectID string) error {
	return l.Log(op, source, ResultSuccess, subjectID, nil)
}

// LogError is a convenience method for failed operations.
func (l *Logger) LogError(op, source, subjectID, errCode, errMsg string) error {
	return l.Log(op, source, ResultError, subjectID, &ErrorInfo{Code: errCode, Message: errMsg})
}

// recordData builds the canonical byte string covered by the record HMAC.
// All significant fields are included so none can be rewritten undetected.
func recordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = fmt.Sprintf("%s|%s", event.Error.Code, event.Error.Message)
	}

	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.SubjectID,
		event.Actor.Source,
		event.Actor.SessionID,
		event.Result,
		errorData,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	)
	return []byte(data)
}

// writeEvent appends an event to the current month's log file.
func (l *Logger) writeEvent(event *Event) error {
	filename := time.Now().UTC().Format("2006-01") + ".jsonl"
	logPath := filepath.Join(l.path, filename)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}

	return nil
}

// chainState holds the persistent chain state.
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, "audit.meta"))
	if err != nil {
		return err
	}

	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(l.path, "audit.meta"), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}

	return nil
}

// VerifyResult reports the outcome of a chain verification pass.
type VerifyResult struct {
	Valid       bool
	EventCount  int
	BrokenAtSeq int64 // sequence of the first broken record, 0 if valid
}

// Verify recomputes the HMAC chain over all log files and reports the first
// break, if any. Requires the HMAC key to be set.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return nil, fmt.Errorf("audit: HMAC key not set")
	}

	events, err := l.readAllEvents()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true, EventCount: len(events)}
	prevHash := "genesis"
	for _, event := range events {
		if event.Chain.PrevHash != prevHash {
			result.Valid = false
			result.BrokenAtSeq = event.Chain.Sequence
			return result, nil
		}

		mac := hmac.New(sha256.New, l.hmacKey)
		mac.Write(recordData(&event))
		if hex.EncodeToString(mac.Sum(nil)) != event.Chain.HMAC {
			result.Valid = false
			result.BrokenAtSeq = event.Chain.Sequence
			return result, nil
		}

		prevHash = event.Chain.HMAC
	}

	return result, nil
}

// readAllEvents loads every event from the monthly log files in order.
func (l *Logger) readAllEvents() ([]Event, error) {
	entries, err := os.ReadDir(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: failed to read log directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".jsonl" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	var events []Event
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(l.path, name))
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read log file: %w", err)
		}
		for _, line := range splitLines(data) {
			var event Event
			if err := json.Unmarshal(line, &event); err != nil {
				return nil, fmt.Errorf("audit: corrupted log record in %s: %w", name, err)
			}
			events = append(events, event)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Chain.Sequence < events[j].Chain.Sequence
	})
	return events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("event-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
