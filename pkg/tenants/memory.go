// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type memDirectory struct {
	byKey map[string]Credential
}

// NewDirectory builds an immutable directory. Keys must be non-empty and unique;
// empty corpid/corpsecret are kept so the relay can report them per request.
func NewDirectory(creds []Credential) (Directory, error) {
	d := &memDirectory{byKey: make(map[string]Credential, len(creds))}
	for i, c := range creds {
		if c.Key == "" {
			return nil, fmt.Errorf("entry %d: %w", i, ErrEmptyKey)
		}
		if _, ok := d.byKey[c.Key]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, c.Key)
		}
		d.byKey[c.Key] = c
	}
	return d, nil
}

func (m *memDirectory) Lookup(_ context.Context, key string) (Credential, error) {
	if c, ok := m.byKey[key]; ok && key != "" {
		return c, nil
	}
	return Credential{}, ErrNotFound
}

func (m *memDirectory) Len() int { return len(m.byKey) }

// ParseSeedJSON decodes a TENANT_SEED_JSON value:
//
//	[{"key":"ops","corpid":"ww123","corpsecret":"..."}]
func ParseSeedJSON(seed string) ([]Credential, error) {
	if strings.TrimSpace(seed) == "" {
		return nil, nil
	}
	var out []Credential
	if err := json.Unmarshal([]byte(seed), &out); err != nil {
		return nil, fmt.Errorf("tenant seed: %w", err)
	}
	return out, nil
}

// LoadFile reads a tenant list from a .yaml/.yml or .json file.
func LoadFile(path string) ([]Credential, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Credential
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("json parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("yaml parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported tenant file extension %q", ext)
	}
	return out, nil
}
