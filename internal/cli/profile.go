package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Profile remembers the remote session the CLI last joined.
type Profile struct {
	BaseURL   string `json:"base_url"`
	SessionID string `json:"session_id"`
	Slot      string `json:"slot"`
}

var ErrNoProfile = errors.New("no remote session, run `tycoon remote open` first")

func profilePath(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

func SaveProfile(dir string, p Profile) error {
	path, err := profilePath(dir)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return err
	}
	return nil
}

func LoadProfile(dir string) (Profile, error) {
	path, err := profilePath(dir)
	if err != nil {
		return Profile{}, err
	}
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, ErrNoProfile
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		return Profile{}, ErrNoProfile
	}
	return p, nil
}

func ClearProfile(dir string) error {
	path, err := profilePath(dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
