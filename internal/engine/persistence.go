package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/celerix-dev/celerix-mint/internal/vault"
)

const (
	plainExt  = ".json"
	sealedExt = ".sealed"
)

// Persistence handles the disk I/O for the MemStore: one file per identity.
// With a sealing key the files are AES-GCM encrypted at rest.
type Persistence struct {
	DataDir string
	key     []byte
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	saved   map[string]uint64
}

// NewPersistence initializes a persistence handler. key may be nil.
func NewPersistence(dir string, key []byte) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if key != nil && len(key) != vault.KeySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", vault.KeySize, len(key))
	}
	return &Persistence{DataDir: dir, key: key, saved: make(map[string]uint64)}, nil
}

// SaveIdentity writes one identity's records atomically. Snapshots older than
// the last saved version for the identity are skipped, so out-of-order
// background saves never roll a file back.
func (p *Persistence) SaveIdentity(id string, version uint64, data map[Kind]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if version != 0 && version <= p.saved[id] {
		return nil
	}

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	ext := plainExt
	if p.key != nil {
		sealed, err := vault.Encrypt(string(bytes), p.key)
		if err != nil {
			return fmt.Errorf("seal %s: %w", id, err)
		}
		bytes = []byte(sealed)
		ext = sealedExt
	}

	filePath := filepath.Join(p.DataDir, id+ext)
	tempPath := filePath + ".tmp"

	if err := os.WriteFile(tempPath, bytes, 0o600); err != nil {
		return err
	}
	// Rename is atomic: a crash leaves either the old file or the new one.
	if err := os.Rename(tempPath, filePath); err != nil {
		return err
	}
	if version != 0 {
		p.saved[id] = version
	}
	return nil
}

// LoadAll returns every identity's records found in the data directory.
func (p *Persistence) LoadAll() (map[string]map[Kind]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string]map[Kind]any)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		name := file.Name()
		ext := filepath.Ext(name)
		if file.IsDir() || (ext != plainExt && ext != sealedExt) {
			continue
		}
		id := strings.TrimSuffix(name, ext)

		content, err := os.ReadFile(filepath.Join(p.DataDir, name))
		if err != nil {
			log.Printf("Warning: could not read record file %s: %v", name, err)
			continue
		}

		if ext == sealedExt {
			if p.key == nil {
				log.Printf("Warning: skipping sealed record file %s: no sealing key configured", name)
				continue
			}
			plain, err := vault.Decrypt(string(content), p.key)
			if err != nil {
				log.Printf("Warning: could not unseal %s: %v", name, err)
				continue
			}
			content = []byte(plain)
		}

		var records map[Kind]json.RawMessage
		if err := json.Unmarshal(content, &records); err != nil {
			log.Printf("Warning: could not unmarshal records from %s: %v", name, err)
			continue
		}
		identityData := make(map[Kind]any, len(records))
		for kind, raw := range records {
			identityData[kind] = raw
		}
		allData[id] = identityData
	}
	return allData, nil
}
