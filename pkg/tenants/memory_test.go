package tenants

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryLookup(t *testing.T) {
	dir, err := NewDirectory([]Credential{
		{Key: "ops", ClientID: "ww1", ClientSecret: "s1"},
		{Key: "dev", ClientID: "ww2", ClientSecret: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Len())

	c, err := dir.Lookup(context.Background(), "ops")
	require.NoError(t, err)
	assert.Equal(t, "ww1", c.ClientID)

	_, err = dir.Lookup(context.Background(), "k1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dir.Lookup(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewDirectoryRejectsBadKeys(t *testing.T) {
	_, err := NewDirectory([]Credential{{Key: ""}})
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = NewDirectory([]Credential{{Key: "a"}, {Key: "a"}})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestMissingField(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
		want string
	}{
		{name: "complete", cred: Credential{Key: "k", ClientID: "id", ClientSecret: "s"}, want: ""},
		{name: "no client id", cred: Credential{Key: "k", ClientSecret: "s"}, want: "clientid"},
		{name: "no secret", cred: Credential{Key: "k", ClientID: "id"}, want: "clientsecret"},
		{name: "neither", cred: Credential{Key: "k"}, want: "clientid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cred.MissingField())
		})
	}
}

func TestParseSeedJSON(t *testing.T) {
	creds, err := ParseSeedJSON(`[{"key":"ops","corpid":"ww1","corpsecret":"s1"}]`)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, Credential{Key: "ops", ClientID: "ww1", ClientSecret: "s1"}, creds[0])

	creds, err = ParseSeedJSON("  ")
	require.NoError(t, err)
	assert.Empty(t, creds)

	_, err = ParseSeedJSON("{not json")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	tmp := t.TempDir()

	yml := filepath.Join(tmp, "tenants.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("- key: ops\n  corpid: ww1\n  corpsecret: s1\n- key: dev\n  corpid: ww2\n"), 0o600))
	creds, err := LoadFile(yml)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "s1", creds[0].ClientSecret)
	assert.Equal(t, "", creds[1].ClientSecret)

	js := filepath.Join(tmp, "tenants.json")
	require.NoError(t, os.WriteFile(js, []byte(`[{"key":"ops","corpid":"ww1","corpsecret":"s1"}]`), 0o600))
	creds, err = LoadFile(js)
	require.NoError(t, err)
	require.Len(t, creds, 1)

	txt := filepath.Join(tmp, "tenants.txt")
	require.NoError(t, os.WriteFile(txt, []byte("ops"), 0o600))
	_, err = LoadFile(txt)
	assert.Error(t, err)
}
