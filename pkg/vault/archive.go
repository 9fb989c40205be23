// Package vault implements the encrypted archive backing a single source:
// an AES-256-GCM encrypted content tree stored in a SQLite file, unlocked
// with an Argon2id-derived key.
package vault

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/forest6511/sourcectl/pkg/crypto"

	_ "modernc.org/sqlite"
)

// Constants
const (
	SaltLength   = 16 // 128-bit salt
	DEKLength    = 32 // 256-bit DEK
	SaltFileName = "archive.salt"
	MetaFileName = "archive.meta"
	DBFileName   = "archive.db"
	FileMode     = 0600 // Owner read/write only
	DirMode      = 0700 // Owner read/write/execute only

	formatVersion = "1.0.0"
)

// Errors
var (
	ErrArchiveAlreadyExists   = errors.New("vault: archive already exists at this path")
	ErrArchiveNotFound        = errors.New("vault: archive not found at this path")
	ErrArchiveLocked          = errors.New("vault: archive is locked")
	ErrArchiveAlreadyUnlocked = errors.New("vault: archive is already unlocked")
	ErrInvalidPassword        = errors.New("vault: invalid master password")
	ErrSaltNotFound           = errors.New("vault: salt file not found")
	ErrDEKNotFound            = errors.New("vault: encrypted DEK not found in database")
	ErrContentNotFound        = errors.New("vault: content blob not found in database")
	ErrArchiveCorrupted       = errors.New("vault: archive is corrupted")
)

// Meta holds archive metadata written beside the database.
type Meta struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive manages one encrypted content tree on disk. While unlocked it
// holds the decrypted DEK and content in memory; Lock releases both.
type Archive struct {
	path string  // Path to archive directory
	dek  []byte  // Decrypted Data Encryption Key (held in memory when unlocked)
	db   *sql.DB // SQLite database connection
	root *Group  // Decrypted content tree (nil when locked)
	mu   sync.RWMutex

	events emitter
}

// New creates an Archive handle for the given directory. The directory may
// or may not exist yet; call Init to create a fresh archive.
func New(path string) *Archive {
	return &Archive{path: path}
}

// Init initializes a new archive:
// 1. Generate salt and save to archive.salt
// 2. Derive KEK from master password and salt
// 3. Generate DEK and encrypt it with the KEK
// 4. Create archive.db, store the encrypted DEK and an empty content tree
// 5. Create archive.meta
func (a *Archive) Init(masterPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.exists() {
		return ErrArchiveAlreadyExists
	}

	if err := os.MkdirAll(a.path, DirMode); err != nil {
		return fmt.Errorf("vault: failed to create archive directory: %w", err)
	}

	// 1. Generate and save salt
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("vault: failed to generate salt: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.path, SaltFileName), salt, FileMode); err != nil {
		return fmt.Errorf("vault: failed to write salt file: %w", err)
	}

	// 2. Derive KEK
	kek := crypto.DeriveKey([]byte(masterPassword), salt)
	defer crypto.SecureWipe(kek)

	// 3. Generate and wrap DEK
	dek := make([]byte, DEKLength)
	if _, err := rand.Read(dek); err != nil {
		return fmt.Errorf("vault: failed to generate DEK: %w", err)
	}
	defer crypto.SecureWipe(dek)

	encryptedDEK, nonce, err := crypto.Encrypt(kek, dek)
	if err != nil {
		return fmt.Errorf("vault: failed to encrypt DEK: %w", err)
	}

	// 4. Initialize database
	dbPath := filepath.Join(a.path, DBFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("vault: failed to open database: %w", err)
	}
	defer db.Close()

	if err := createTables(db); err != nil {
		return fmt.Errorf("vault: failed to create tables: %w", err)
	}

	if _, err := db.Exec("INSERT INTO archive_keys(encrypted_dek, dek_nonce) VALUES(?, ?)",
		encryptedDEK, nonce); err != nil {
		return fmt.Errorf("vault: failed to save encrypted DEK: %w", err)
	}

	// Store an empty root group so a freshly initialized archive unlocks
	// to a usable tree.
	root := NewGroup("")
	if err := writeContent(db, dek, root); err != nil {
		return err
	}

	// 5. Metadata file
	meta := Meta{Version: formatVersion, CreatedAt: time.Now().UTC()}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.path, MetaFileName), metaJSON, FileMode); err != nil {
		return fmt.Errorf("vault: failed to write metadata file: %w", err)
	}

	if err := os.Chmod(dbPath, FileMode); err != nil {
		return fmt.Errorf("vault: failed to set database permissions: %w", err)
	}

	return nil
}

// Unlock unlocks the archive using the master password and loads the
// decrypted content tree into memory. Fires unlocked callbacks on success.
func (a *Archive) Unlock(masterPassword string) error {
	a.mu.Lock()

	if !a.exists() {
		a.mu.Unlock()
		return ErrArchiveNotFound
	}
	if a.dek != nil {
		a.mu.Unlock()
		return ErrArchiveAlreadyUnlocked
	}

	salt, err := a.readSalt()
	if err != nil {
		a.mu.Unlock()
		return err
	}

	kek := crypto.DeriveKey([]byte(masterPassword), salt)
	defer crypto.SecureWipe(kek)

	db, err := sql.Open("sqlite", filepath.Join(a.path, DBFileName))
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("vault: failed to open database: %w", err)
	}
	// Single-connection mode avoids "database is locked" errors for local use.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var encryptedDEK, nonce []byte
	err = db.QueryRow("SELECT encrypted_dek, dek_nonce FROM archive_keys WHERE id = 1").
		Scan(&encryptedDEK, &nonce)
	if err != nil {
		db.Close()
		a.mu.Unlock()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDEKNotFound
		}
		return fmt.Errorf("vault: failed to read encrypted DEK: %w", err)
	}

	dek, err := crypto.Decrypt(kek, encryptedDEK, nonce)
	if err != nil {
		db.Close()
		a.mu.Unlock()
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("vault: failed to decrypt DEK: %w", err)
	}

	root, err := readContent(db, dek)
	if err != nil {
		crypto.SecureWipe(dek)
		db.Close()
		a.mu.Unlock()
		return err
	}

	a.dek = dek
	a.db = db
	a.root = root
	a.mu.Unlock()

	// Fired outside the lock so callbacks may read archive state.
	a.events.fire(eventUnlocked)

	return nil
}

// Lock locks the archive, securely destroying the DEK and releasing the
// content tree.
func (a *Archive) Lock() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dek != nil {
		crypto.SecureWipe(a.dek)
		a.dek = nil
	}
	a.root = nil

	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// IsLocked returns whether the archive is locked.
func (a *Archive) IsLocked() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dek == nil
}

// Content returns the decrypted root group, or nil while locked. The tree
// is shared: mutate it and call Save to persist.
func (a *Archive) Content() *Group {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.root
}

// Save encrypts the in-memory content tree and writes it to the database.
// Fires updated callbacks on success.
func (a *Archive) Save() error {
	a.mu.Lock()

	if a.dek == nil {
		a.mu.Unlock()
		return ErrArchiveLocked
	}

	if err := writeContent(a.db, a.dek, a.root); err != nil {
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()

	a.events.fire(eventUpdated)

	return nil
}

// Reload re-reads the content blob from the database, replacing the
// in-memory tree. Used when the archive file changed underneath us
// (a sync client rewrote it). Fires updated callbacks on success.
func (a *Archive) Reload() error {
	a.mu.Lock()

	if a.dek == nil {
		a.mu.Unlock()
		return ErrArchiveLocked
	}

	root, err := readContent(a.db, a.dek)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.root = root
	a.mu.Unlock()

	a.events.fire(eventUpdated)

	return nil
}

// TestMasterPassword reports whether the given password unwraps the DEK.
// It does not change the archive's lock state.
func (a *Archive) TestMasterPassword(masterPassword string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.exists() {
		return false, ErrArchiveNotFound
	}

	salt, err := a.readSalt()
	if err != nil {
		return false, err
	}

	kek := crypto.DeriveKey([]byte(masterPassword), salt)
	defer crypto.SecureWipe(kek)

	db, err := sql.Open("sqlite", filepath.Join(a.path, DBFileName))
	if err != nil {
		return false, fmt.Errorf("vault: failed to open database: %w", err)
	}
	defer db.Close()

	var encryptedDEK, nonce []byte
	err = db.QueryRow("SELECT encrypted_dek, dek_nonce FROM archive_keys WHERE id = 1").
		Scan(&encryptedDEK, &nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrDEKNotFound
		}
		return false, fmt.Errorf("vault: failed to read encrypted DEK: %w", err)
	}

	dek, err := crypto.Decrypt(kek, encryptedDEK, nonce)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return false, nil
		}
		return false, err
	}
	crypto.SecureWipe(dek)

	return true, nil
}

// Path returns the archive directory.
func (a *Archive) Path() string {
	return a.path
}

// DBPath returns the path of the SQLite file holding the encrypted content.
func (a *Archive) DBPath() string {
	return filepath.Join(a.path, DBFileName)
}

// Exists reports whether an archive has been initialized at the path.
func (a *Archive) Exists() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exists()
}

func (a *Archive) exists() bool {
	_, err := os.Stat(filepath.Join(a.path, SaltFileName))
	return err == nil
}

func (a *Archive) readSalt() ([]byte, error) {
	salt, err := os.ReadFile(filepath.Join(a.path, SaltFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSaltNotFound
		}
		return nil, fmt.Errorf("vault: failed to read salt file: %w", err)
	}
	// Wrong salt length means corruption or tampering.
	if len(salt) != SaltLength {
		return nil, ErrArchiveCorrupted
	}
	return salt, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS archive_keys (
			id INTEGER PRIMARY KEY,
			encrypted_dek BLOB NOT NULL,
			dek_nonce BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// The whole content tree is one nonce-prepended encrypted blob. A single
	// row keeps save/reload atomic.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS archive_content (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			blob BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// writeContent marshals, encrypts and upserts the content blob.
func writeContent(db *sql.DB, dek []byte, root *Group) error {
	plaintext, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal content: %w", err)
	}

	ciphertext, nonce, err := crypto.Encrypt(dek, plaintext)
	if err != nil {
		return fmt.Errorf("vault: failed to encrypt content: %w", err)
	}
	blob := append(nonce, ciphertext...)

	_, err = db.Exec(`
		INSERT INTO archive_content (id, blob, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			blob = excluded.blob,
			updated_at = CURRENT_TIMESTAMP
	`, blob)
	if err != nil {
		return fmt.Errorf("vault: failed to save content: %w", err)
	}
	return nil
}

// readContent reads and decrypts the content blob into a tree.
func readContent(db *sql.DB, dek []byte) (*Group, error) {
	var blob []byte
	err := db.QueryRow("SELECT blob FROM archive_content WHERE id = 1").Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("vault: failed to read content: %w", err)
	}

	if len(blob) < crypto.NonceLength {
		return nil, ErrArchiveCorrupted
	}
	plaintext, err := crypto.Decrypt(dek, blob[crypto.NonceLength:], blob[:crypto.NonceLength])
	if err != nil {
		return nil, fmt.Errorf("vault: failed to decrypt content: %w", err)
	}

	var root Group
	if err := json.Unmarshal(plaintext, &root); err != nil {
		return nil, fmt.Errorf("vault: failed to unmarshal content: %w", err)
	}
	return &root, nil
}
