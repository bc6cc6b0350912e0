// Package directory resolves and persists client profiles. Each known client
// owns a subdirectory of the readings root holding a ClientProfile.json file
// alongside its daily ledger files.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hblackburnRedev/SmartMeter/logging"
)

// profileFileName is the per-client profile file inside the client directory.
const profileFileName = "ClientProfile.json"

// Domain errors surfaced to callers.
var (
	// ErrProfileNotFound indicates no profile exists for the client.
	ErrProfileNotFound = errors.New("client profile not found")

	// ErrProfileExists indicates a profile already exists for the client.
	// Creating a second profile for the same clientId is a protocol error,
	// not something to silently ignore.
	ErrProfileExists = errors.New("client profile already exists")
)

// Profile is the persisted identity of a registered client. Immutable after
// creation.
type Profile struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name"`
	Address  string `json:"address"`
}

// Directory stores client profiles under the readings root.
type Directory struct {
	logger logging.Logger
	root   string
}

// New creates a client directory rooted at the readings directory.
func New(logger logging.Logger, root string) *Directory {
	return &Directory{
		logger: logging.ForComponent(logger, logging.ComponentDirectory),
		root:   root,
	}
}

// Exists reports whether a profile exists for the client.
func (d *Directory) Exists(clientID string) (bool, error) {
	_, err := os.Stat(d.profilePath(clientID))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat client profile: %w", err)
}

// Get returns the profile for the client, or ErrProfileNotFound.
func (d *Directory) Get(clientID string) (*Profile, error) {
	data, err := os.ReadFile(d.profilePath(clientID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, clientID)
		}
		return nil, fmt.Errorf("failed to read client profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse client profile for %s: %w", clientID, err)
	}
	return &p, nil
}

// Create persists a new profile for the client. Returns ErrProfileExists if
// the client is already registered. The profile file is created exclusively,
// so concurrent registrations for the same clientID resolve to exactly one
// winner even when both connections race past the directory check.
func (d *Directory) Create(clientID, name, address string) (*Profile, error) {
	if err := os.MkdirAll(filepath.Join(d.root, clientID), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create client directory: %w", err)
	}

	p := &Profile{
		ClientID: clientID,
		Name:     name,
		Address:  address,
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode client profile: %w", err)
	}

	f, err := os.OpenFile(d.profilePath(clientID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfileExists, clientID)
		}
		return nil, fmt.Errorf("failed to create client profile: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write client profile: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write client profile: %w", err)
	}

	d.logger.Info().
		Str(logging.FieldClientID, clientID).
		Msg("client profile created")

	return p, nil
}

func (d *Directory) profilePath(clientID string) string {
	return filepath.Join(d.root, clientID, profileFileName)
}
