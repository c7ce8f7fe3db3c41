// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config persists caddx preferences on disk.
//
// Preferences are stored as YAML or TOML, chosen by the file extension.
// A Store implements engine.Settings so the link engine can record the
// panel's firmware and capability flags as it negotiates.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/caddx/pkg/engine"
	"gopkg.in/yaml.v3"
)

const (
	appName    = "caddx"
	configFile = "config.yaml"

	// DefaultBaudRate is the NX-584 factory default
	DefaultBaudRate = 9600
)

// Preferences are the persisted settings.
type Preferences struct {
	SerialPort     string `yaml:"serialPort,omitempty" toml:"serialPort,omitempty"`
	SerialBaudRate int    `yaml:"serialBaudRate,omitempty" toml:"serialBaudRate,omitempty"`
	DebugMode      bool   `yaml:"debugMode" toml:"debugMode"`
	PanelFirmware  string `yaml:"panelFirmware,omitempty" toml:"panelFirmware,omitempty"`

	TransitionMessageFlags1 *uint8 `yaml:"transitionMessageFlags1,omitempty" toml:"transitionMessageFlags1"`
	TransitionMessageFlags2 *uint8 `yaml:"transitionMessageFlags2,omitempty" toml:"transitionMessageFlags2"`
	RequestCommandFlags1    *uint8 `yaml:"requestCommandFlags1,omitempty" toml:"requestCommandFlags1"`
	RequestCommandFlags2    *uint8 `yaml:"requestCommandFlags2,omitempty" toml:"requestCommandFlags2"`
	RequestCommandFlags3    *uint8 `yaml:"requestCommandFlags3,omitempty" toml:"requestCommandFlags3"`
	RequestCommandFlags4    *uint8 `yaml:"requestCommandFlags4,omitempty" toml:"requestCommandFlags4"`
}

// Store is a file-backed preference set. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	path  string
	prefs Preferences
}

var _ engine.Settings = (*Store)(nil)

// DefaultDir returns $XDG_CONFIG_HOME/caddx, or $HOME/.config/caddx.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// DefaultPath returns the default preferences file.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the preferences at path. A missing file yields an empty store
// that will be created on the first Save.
func Load(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), &s.prefs); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &s.prefs); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return s, nil
}

// Path returns the file the store saves to.
func (s *Store) Path() string { return s.path }

// Preferences returns a copy of the current preferences.
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Save writes the preferences atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	prefs := s.prefs
	s.mu.RUnlock()

	var data []byte
	if isTOML(s.path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(prefs); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(prefs)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write to a temporary file first so a crash never leaves a partial file
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// Get implements engine.Settings. Unset values report false.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := &s.prefs
	switch key {
	case engine.KeySerialPort:
		return p.SerialPort, p.SerialPort != ""
	case engine.KeySerialBaudRate:
		return p.SerialBaudRate, p.SerialBaudRate != 0
	case engine.KeyDebugMode:
		return p.DebugMode, true
	case engine.KeyPanelFirmware:
		return p.PanelFirmware, p.PanelFirmware != ""
	}
	if f := p.flag(key); f != nil && *f != nil {
		return **f, true
	}
	return nil, false
}

// Set implements engine.Settings. Values of the wrong type are ignored.
// Changes are kept in memory until Save.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.prefs
	switch key {
	case engine.KeySerialPort:
		if v, ok := value.(string); ok {
			p.SerialPort = v
		}
		return
	case engine.KeySerialBaudRate:
		if v, ok := value.(int); ok {
			p.SerialBaudRate = v
		}
		return
	case engine.KeyDebugMode:
		if v, ok := value.(bool); ok {
			p.DebugMode = v
		}
		return
	case engine.KeyPanelFirmware:
		if v, ok := value.(string); ok {
			p.PanelFirmware = v
		}
		return
	}
	if f := p.flag(key); f != nil {
		if v, ok := value.(uint8); ok {
			*f = &v
		}
	}
}

func (p *Preferences) flag(key string) **uint8 {
	switch key {
	case engine.KeyTransitionMessageFlags1:
		return &p.TransitionMessageFlags1
	case engine.KeyTransitionMessageFlags2:
		return &p.TransitionMessageFlags2
	case engine.KeyRequestCommandFlags1:
		return &p.RequestCommandFlags1
	case engine.KeyRequestCommandFlags2:
		return &p.RequestCommandFlags2
	case engine.KeyRequestCommandFlags3:
		return &p.RequestCommandFlags3
	case engine.KeyRequestCommandFlags4:
		return &p.RequestCommandFlags4
	default:
		return nil
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
