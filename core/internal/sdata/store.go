package sdata

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.mozilla.org/sops/v3/decrypt"
)

// Store reads and persists the schema document. All IO goes through
// afero so tests can run against an in-memory filesystem. Documents
// with ".enc." in their name are sops-encrypted and decrypted on load.
type Store struct {
	fs   afero.Fs
	path string
}

func NewStore(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

func (st *Store) Path() string { return st.path }

// Load reads, decrypts if needed, and parses the schema document. The
// raw document bytes are returned alongside so reload can re-persist
// them unchanged.
func (st *Store) Load() (*Schema, []byte, error) {
	doc, err := afero.ReadFile(st.fs, st.path)
	if err != nil {
		return nil, nil, fmt.Errorf("read schema document: %w", err)
	}

	format := docFormat(st.path)
	if st.Encrypted() {
		if doc, err = decrypt.Data(doc, format); err != nil {
			return nil, nil, fmt.Errorf("decrypt schema document: %w", err)
		}
	}

	var s *Schema
	if format == "yaml" {
		s, err = ParseYAML(doc)
	} else {
		s, err = Parse(doc)
	}
	if err != nil {
		return nil, nil, err
	}
	return s, doc, nil
}

// Parse decodes a document in the store's format without touching the
// filesystem. Reload uses it on caller supplied replacement documents.
func (st *Store) Parse(doc []byte) (*Schema, error) {
	if docFormat(st.path) == "yaml" {
		return ParseYAML(doc)
	}
	return Parse(doc)
}

// Encrypted reports whether the store path names a sops-encrypted
// document. Such stores cannot be overwritten with plaintext.
func (st *Store) Encrypted() bool {
	return strings.Contains(filepath.Base(st.path), ".enc.")
}

// Save persists the document with a temp-file and rename so a crash
// mid-write never truncates the last committed schema.
func (st *Store) Save(doc []byte) error {
	tmp := st.path + ".tmp"
	if err := afero.WriteFile(st.fs, tmp, doc, 0o600); err != nil {
		return fmt.Errorf("write schema document: %w", err)
	}
	if err := st.fs.Rename(tmp, st.path); err != nil {
		return fmt.Errorf("commit schema document: %w", err)
	}
	return nil
}

func docFormat(path string) string {
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		return "yaml"
	default:
		return "json"
	}
}
