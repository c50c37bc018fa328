package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lastping/lastpingd/internal/liveness"
)

const payloadVersion = 1

// Store reads and writes the encrypted registry snapshot at one path.
// A store with an empty path or secret is disabled: Load returns no
// records and Save is a no-op.
type Store struct {
	path   string
	secret string
}

// NewStore builds a snapshot store; path and secret are trimmed.
func NewStore(path, secret string) *Store {
	return &Store{
		path:   strings.TrimSpace(path),
		secret: strings.TrimSpace(secret),
	}
}

// Enabled reports whether persistence is configured.
func (s *Store) Enabled() bool {
	return s.path != "" && s.secret != ""
}

type persistedState struct {
	Version  int               `json:"version"`
	Revision uint64            `json:"revision"`
	Accounts []liveness.Record `json:"accounts"`
}

// Load decrypts and decodes the snapshot. A missing file is a clean
// bootstrap: nil records, no error. A wrong secret fails with
// ErrAuthFailed so the daemon refuses to boot over state it cannot read.
func (s *Store) Load() ([]liveness.Record, uint64, error) {
	if !s.Enabled() {
		return nil, 0, nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	plaintext, err := open(s.secret, raw)
	if err != nil {
		return nil, 0, err
	}
	var state persistedState
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if state.Version != payloadVersion {
		return nil, 0, fmt.Errorf("%w: payload version %d", ErrInvalid, state.Version)
	}
	return state.Accounts, state.Revision, nil
}

// Save seals the records and replaces the snapshot file atomically
// (temp file in the same directory, then rename).
func (s *Store) Save(records []liveness.Record, revision uint64) error {
	if !s.Enabled() {
		return nil
	}
	payload, err := json.Marshal(persistedState{
		Version:  payloadVersion,
		Revision: revision,
		Accounts: records,
	})
	if err != nil {
		return err
	}
	sealed, err := seal(s.secret, payload)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
