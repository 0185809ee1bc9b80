package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/GoCodeAlone/workflow-wizard/intent"
)

// VocabularyFile is an intent vocabulary stored on disk.
type VocabularyFile string

// snapshot returns the raw bytes and their SHA-256 digest.
func (f VocabularyFile) snapshot() ([]byte, string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, "", fmt.Errorf("read vocabulary %s: %w", f, err)
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// Load parses and validates the file.
func (f VocabularyFile) Load() (*intent.Vocabulary, error) {
	data, _, err := f.snapshot()
	if err != nil {
		return nil, err
	}
	v, err := intent.ParseVocabulary(data)
	if err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", f, err)
	}
	return v, nil
}
