// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// Storage keys for the persisted credential pair. Fixed so that independent
// client processes sharing a credential file agree on the layout.
const (
	AccessTokenKey  = "harmonia.access_token"
	RefreshTokenKey = "harmonia.refresh_token"
)

// CredentialStore holds the access/refresh token pair for a client session.
// Tokens are written only by the transport's refresh path and by the
// application at login; Clear removes both atomically.
type CredentialStore interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(access, refresh string) error
	Clear() error
}

// MemoryCredentials is an in-process CredentialStore.
type MemoryCredentials struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// NewMemoryCredentials returns a store seeded with the given pair.
func NewMemoryCredentials(access, refresh string) *MemoryCredentials {
	return &MemoryCredentials{access: access, refresh: refresh}
}

func (m *MemoryCredentials) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

func (m *MemoryCredentials) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresh
}

func (m *MemoryCredentials) SetTokens(access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = access
	if refresh != "" {
		m.refresh = refresh
	}
	return nil
}

func (m *MemoryCredentials) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = ""
	m.refresh = ""
	return nil
}

// FileCredentials persists the pair as a JSON file under the fixed storage
// keys. Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated credential file.
type FileCredentials struct {
	mu   sync.RWMutex
	path string
}

// NewFileCredentials opens (or lazily creates) a file-backed store at path.
func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

func (f *FileCredentials) AccessToken() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.load()[AccessTokenKey]
}

func (f *FileCredentials) RefreshToken() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.load()[RefreshTokenKey]
}

func (f *FileCredentials) SetTokens(access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := f.load()
	data[AccessTokenKey] = access
	if refresh != "" {
		data[RefreshTokenKey] = refresh
	}
	return f.save(data)
}

func (f *FileCredentials) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileCredentials) load() map[string]string {
	data := make(map[string]string)
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return data
	}
	_ = json.Unmarshal(raw, &data)
	return data
}

func (f *FileCredentials) save(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
