package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Server.Port)
	assert.Equal(t, defaultGraphURL, cfg.Meta.GraphURL)
	assert.Equal(t, defaultTimeout, cfg.Meta.Timeout)
	assert.Equal(t, "Leads!A1", cfg.Sheets.Range)
	assert.Empty(t, cfg.Templates.FallbackBucket)
	assert.Equal(t, defaultWALink, cfg.Links.WhatsApp)
	assert.Equal(t, "info", cfg.Options.LogLevel)
	assert.False(t, cfg.Journal.Enabled)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 8080
meta:
  verify_token: from-file
  page_id: "123"
  timeout: 3s
links:
  form: https://forms.example/a
journal:
  path: /tmp/replybot-test.db
`)
	t.Setenv("IG_VERIFY_TOKEN", "from-env")
	t.Setenv("WA_LINK", "https://wa.me/99")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Meta.VerifyToken)
	assert.Equal(t, "123", cfg.Meta.PageID)
	assert.Equal(t, 3*time.Second, cfg.Meta.Timeout)
	assert.Equal(t, "https://forms.example/a", cfg.Links.Form)
	assert.Equal(t, "https://wa.me/99", cfg.Links.WhatsApp)
	assert.True(t, cfg.Journal.Enabled)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeFile(t, "bad.yaml", "server: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config file")

	t.Setenv("PORT", "not-a-number")
	_, err = Load("")
	assert.ErrorContains(t, err, "failed to parse environment")
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := writeFile(t, ".env", "FB_PAGE_ID=from-dotenv\nGSHEET_ID=sheet-from-dotenv\n")
	t.Setenv("FB_PAGE_ID", "from-process")
	t.Setenv("GSHEET_ID", "")
	os.Unsetenv("GSHEET_ID")

	loaded, err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, loaded)
	assert.Equal(t, "from-process", os.Getenv("FB_PAGE_ID"))
	assert.Equal(t, "sheet-from-dotenv", os.Getenv("GSHEET_ID"))
	os.Unsetenv("GSHEET_ID")
}

func TestValidateServe(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.ValidateServe()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IG_VERIFY_TOKEN")
	assert.Contains(t, err.Error(), "FB_PAGE_ID")
	assert.Contains(t, err.Error(), "PAGE_ACCESS_TOKEN")

	cfg.Meta.VerifyToken = "v"
	cfg.Options.DryRun = true
	assert.NoError(t, cfg.ValidateServe())

	cfg.Server.Port = 70000
	assert.ErrorContains(t, cfg.ValidateServe(), "invalid port")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Meta.PageID = "page"

	require.NoError(t, Save(path, cfg))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "page", loaded.Meta.PageID)
}

func TestDefaultsIgnoreEnvironment(t *testing.T) {
	t.Setenv("PAGE_ACCESS_TOKEN", "secret")
	t.Setenv("PORT", "9999")

	cfg := Defaults()
	assert.Empty(t, cfg.Meta.AccessToken)
	assert.Equal(t, defaultPort, cfg.Server.Port)
	assert.Equal(t, defaultWALink, cfg.Links.WhatsApp)
}

func TestSaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "replybot.yaml")
	require.NoError(t, Save(path, Defaults()))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, loaded.Meta.Timeout)
	assert.Equal(t, "Leads!A1", loaded.Sheets.Range)
}
