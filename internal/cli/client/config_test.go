package client

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "cns_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// useTempConfig points the global config at a fresh temp dir for one test.
func useTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	old := configPath
	configPath = func() (string, error) { return path, nil }
	t.Cleanup(func() { configPath = old })
	return path
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")
	path, err := configPath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.True(t, strings.HasSuffix(path, filepath.Join("counsel", "config.json")))
}

func TestLoadGlobalConfig_FileNotExists(t *testing.T) {
	useTempConfig(t)

	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadGlobalConfig_InvalidJSON(t *testing.T) {
	path := useTempConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadGlobalConfig()
	assert.ErrorContains(t, err, "parse "+path)
}

func TestSaveGlobalConfig_RoundTripWithOwnerOnlyPermissions(t *testing.T) {
	path := useTempConfig(t)

	want := &GlobalConfig{APIKey: testKey, APIURL: "https://counsel.example"}
	require.NoError(t, SaveGlobalConfig(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	assert.Error(t, SaveGlobalConfig(nil))
}

func TestDeleteGlobalConfig(t *testing.T) {
	path := useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: testKey}))

	require.NoError(t, DeleteGlobalConfig())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// deleting twice is fine
	assert.NoError(t, DeleteGlobalConfig())
}

func TestIsValidAPIKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{testKey, true},
		{"cns_" + strings.Repeat("A", 64), true},
		{"ntx_" + strings.Repeat("a", 64), false},
		{"cns_" + strings.Repeat("a", 63), false},
		{"cns_" + strings.Repeat("g", 64), false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidAPIKey(tt.key), tt.key)
	}
}

func TestResolveCredentials(t *testing.T) {
	stored := &GlobalConfig{APIKey: testKey, APIURL: "http://stored:8080"}

	tests := []struct {
		name             string
		stored           *GlobalConfig
		envKey, envURL   string
		flagKey, flagURL string
		want             Credentials
	}{
		{
			name:   "flag wins",
			stored: stored, envKey: "env-key", envURL: "http://env:8080",
			flagKey: "flag-key", flagURL: "http://flag:8080",
			want: Credentials{Source: SourceFlag, APIKey: "flag-key", APIURL: "http://flag:8080"},
		},
		{
			name:    "flag key takes url from env",
			envURL:  "http://env:8080",
			flagKey: "flag-key",
			want:    Credentials{Source: SourceFlag, APIKey: "flag-key", APIURL: "http://env:8080"},
		},
		{
			name:   "env before global config",
			stored: stored, envKey: "env-key",
			want: Credentials{Source: SourceEnv, APIKey: "env-key", APIURL: defaultAPIURL},
		},
		{
			name:   "global config",
			stored: stored,
			want:   Credentials{Source: SourceGlobalConfig, APIKey: testKey, APIURL: "http://stored:8080"},
		},
		{
			name:   "url flag overrides stored url",
			stored: stored, flagURL: "http://other:9090",
			want: Credentials{Source: SourceGlobalConfig, APIKey: testKey, APIURL: "http://other:9090"},
		},
		{
			name:   "stored key without url",
			stored: &GlobalConfig{APIKey: testKey},
			want:   Credentials{Source: SourceGlobalConfig, APIKey: testKey, APIURL: defaultAPIURL},
		},
		{
			name: "nothing configured",
			want: Credentials{Source: SourceNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useTempConfig(t)
			if tt.stored != nil {
				require.NoError(t, SaveGlobalConfig(tt.stored))
			}
			t.Setenv(envAPIKey, tt.envKey)
			t.Setenv(envAPIURL, tt.envURL)

			got, err := ResolveCredentials(tt.flagKey, tt.flagURL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.APIKey != "", got.Found())
		})
	}
}

func TestResolveCredentials_BrokenConfig(t *testing.T) {
	path := useTempConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("["), 0o600))
	t.Setenv(envAPIKey, "")

	creds, err := ResolveCredentials("", "")
	assert.Error(t, err)
	assert.False(t, creds.Found())
}
