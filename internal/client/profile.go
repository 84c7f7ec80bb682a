package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ahmetk3436/duochat/internal/models"
	"gopkg.in/yaml.v3"
)

// Profile is the CLI's persisted connection settings.
type Profile struct {
	Server  string         `yaml:"server"`
	Token   string         `yaml:"token,omitempty"`
	Model   string         `yaml:"model,omitempty"`
	Backend models.Backend `yaml:"backend"`
	Timeout time.Duration  `yaml:"timeout"`
}

func DefaultProfile() *Profile {
	return &Profile{
		Server:  "http://localhost:8097/api",
		Backend: models.BackendLocal,
		Timeout: 2 * time.Minute,
	}
}

// DefaultProfilePath is ~/.config/duochat/profile.yaml or its platform
// equivalent.
func DefaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "duochat-profile.yaml"
	}
	return filepath.Join(dir, "duochat", "profile.yaml")
}

// LoadProfile reads path over the defaults. A missing file yields the defaults.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if !p.Backend.Valid() {
		return nil, fmt.Errorf("profile %s: backend %q is not one of local, routed", path, p.Backend)
	}
	return p, nil
}

func SaveProfile(path string, p *Profile) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
