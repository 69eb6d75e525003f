// Package storage persists chat records, prompt history and request logs inside the
// notes vault.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"noteassist/pkg/assisttypes"
)

// Default folder names inside the vault.
const (
	ChatFolder = "AI Assistant Chats"
	LogFolder  = "ai-assistant-logs"
)

const recordExt = ".json"

// VaultStore keeps one JSON file per record name in a folder of the vault.
// The folder is created on first write.
type VaultStore struct {
	root   string
	folder string
}

// NewVaultStore returns a store for folder under the vault root.
func NewVaultStore(root, folder string) *VaultStore {
	return &VaultStore{root: root, folder: folder}
}

// Dir returns the absolute folder the store writes into.
func (v *VaultStore) Dir() string {
	return filepath.Join(v.root, v.folder)
}

func (v *VaultStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid record name %q", name)
	}
	return filepath.Join(v.Dir(), name+recordExt), nil
}

// Exists implements assisttypes.PersistenceProvider.
func (v *VaultStore) Exists(name string) (bool, error) {
	path, err := v.path(name)
	if err != nil {
		return false, &assisttypes.PersistenceError{Op: "stat", Name: name, Err: err}
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, &assisttypes.PersistenceError{Op: "stat", Name: name, Err: err}
}

// Read implements assisttypes.PersistenceProvider.
func (v *VaultStore) Read(name string) ([]byte, error) {
	path, err := v.path(name)
	if err != nil {
		return nil, &assisttypes.PersistenceError{Op: "read", Name: name, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &assisttypes.PersistenceError{Op: "read", Name: name, Err: err}
	}
	return data, nil
}

// Write implements assisttypes.PersistenceProvider.
func (v *VaultStore) Write(name string, data []byte) error {
	path, err := v.path(name)
	if err != nil {
		return &assisttypes.PersistenceError{Op: "write", Name: name, Err: err}
	}
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return &assisttypes.PersistenceError{Op: "write", Name: name, Err: err}
	}
	return nil
}

// List implements assisttypes.PersistenceProvider. A missing folder lists as empty.
func (v *VaultStore) List() ([]string, error) {
	entries, err := os.ReadDir(v.Dir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &assisttypes.PersistenceError{Op: "list", Name: v.folder, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), recordExt))
	}
	sort.Strings(names)
	return names, nil
}
