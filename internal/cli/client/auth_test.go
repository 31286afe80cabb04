package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthLogin_StoresCredentials(t *testing.T) {
	useTempConfig(t)

	var out bytes.Buffer
	require.NoError(t, runAuthLogin(&out, testKey, "http://localhost:8080"))
	assert.Contains(t, out.String(), "Successfully logged in")

	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, testKey, cfg.APIKey)
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
}

func TestAuthLogin_RejectsMalformedKey(t *testing.T) {
	useTempConfig(t)

	err := runAuthLogin(&bytes.Buffer{}, "ntx_abc", "http://localhost:8080")
	assert.ErrorContains(t, err, "invalid API key format")

	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestAuthLoginCmd_ReadsKeyFromStdinAndVerifies(t *testing.T) {
	useTempConfig(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"org_id":"org-1","user_id":"u1","key_id":"k1"}}`))
	}))
	defer srv.Close()

	cmd := AuthCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(testKey + "\n"))
	cmd.SetArgs([]string{"login", "--url", srv.URL, "--verify"})

	require.NoError(t, cmd.Execute())

	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, srv.URL, cfg.APIURL)
}

func TestAuthLoginCmd_VerifyRejected(t *testing.T) {
	useTempConfig(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid API key"}`))
	}))
	defer srv.Close()

	cmd := AuthCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"login", "--key", testKey, "--url", srv.URL, "--verify"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "invalid API key")

	cfg, _ := LoadGlobalConfig()
	assert.Nil(t, cfg)
}

func TestAuthLogout_ClearsConfig(t *testing.T) {
	useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: testKey, APIURL: defaultAPIURL}))

	cmd := AuthCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"logout"})
	require.NoError(t, cmd.Execute())

	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Successfully logged out")
}

func TestWriteStatus(t *testing.T) {
	t.Run("text without credentials", func(t *testing.T) {
		var out bytes.Buffer
		writeStatusText(&out, Credentials{Source: SourceNone}, nil)
		assert.Contains(t, out.String(), "Not authenticated")
	})

	t.Run("text with identity", func(t *testing.T) {
		var out bytes.Buffer
		writeStatusText(&out, Credentials{SourceGlobalConfig, testKey, defaultAPIURL}, &MeResponse{OrgID: "org-1", UserID: "alice"})
		s := out.String()
		assert.Contains(t, s, "Source: global_config")
		assert.Contains(t, s, "Organization: org-1")
		assert.NotContains(t, s, testKey)
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, writeStatusJSON(&out, Credentials{SourceEnv, testKey, defaultAPIURL}, nil))

		var status map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &status))
		assert.Equal(t, true, status["authenticated"])
		assert.Equal(t, "env", status["source"])
		assert.Equal(t, maskAPIKey(testKey), status["api_key"])
		assert.NotContains(t, status, "org_id")
	})
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "cns_0123...cdef", maskAPIKey(testKey))
	assert.Equal(t, "***", maskAPIKey("short"))
}
