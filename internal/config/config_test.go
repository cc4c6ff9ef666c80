package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every OPENPROJECT_* variable for the duration of the test.
// viper treats empty variables as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"URL", "API_KEY", "QUERY_ID_BUGS", "QUERY_ID_READY", "AI_DEV_FIELD"} {
		t.Setenv(EnvPrefix+"_"+key, "")
	}
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
	assert.False(t, s.HasAPIKey())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENPROJECT_URL", "https://op.example.com")
	t.Setenv("OPENPROJECT_API_KEY", "secret")
	t.Setenv("OPENPROJECT_QUERY_ID_BUGS", "11")
	t.Setenv("OPENPROJECT_QUERY_ID_READY", "22")
	t.Setenv("OPENPROJECT_AI_DEV_FIELD", "customField9")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Settings{
		URL:          "https://op.example.com",
		APIKey:       "secret",
		QueryIDBugs:  11,
		QueryIDReady: 22,
		AIDevField:   "customField9",
	}, s)
	assert.True(t, s.HasAPIKey())
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "OPENPROJECT_URL=http://file-host:8085\nOPENPROJECT_API_KEY=from-file\nOPENPROJECT_QUERY_ID_BUGS=5\nUNRELATED=1\n")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://file-host:8085", s.URL)
	assert.Equal(t, "from-file", s.APIKey)
	assert.Equal(t, 5, s.QueryIDBugs)
	assert.Equal(t, DefaultQueryIDReady, s.QueryIDReady)
	assert.Equal(t, DefaultAIDevField, s.AIDevField)
}

func TestLoad_EnvironmentOverridesEnvFile(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "OPENPROJECT_API_KEY=from-file\n")
	t.Setenv("OPENPROJECT_API_KEY", "from-env")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.APIKey)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)

	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoad_InvalidQueryID(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENPROJECT_QUERY_ID_BUGS", "not-a-number")

	_, err := Load("")
	require.Error(t, err)
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Settings)
		errContains string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Settings) {},
		},
		{
			name:        "empty url",
			modify:      func(s *Settings) { s.URL = "" },
			errContains: "URL is required",
		},
		{
			name:        "malformed url",
			modify:      func(s *Settings) { s.URL = "not a url" },
			errContains: "URL has invalid value",
		},
		{
			name:        "zero query id",
			modify:      func(s *Settings) { s.QueryIDReady = 0 },
			errContains: "QueryIDReady has invalid value 0: gt",
		},
		{
			name:        "empty field",
			modify:      func(s *Settings) { s.AIDevField = "" },
			errContains: "AIDevField is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(&s)

			err := s.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}
