package bot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  admin_id: 42
  admin_ids: [7]
database:
  host: localhost
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "longpoll", cfg.Core.Telegram.RunMode)
	assert.ElementsMatch(t, []int64{7, 42}, cfg.Core.Telegram.AdminIDs)
	assert.Equal(t, "materials", cfg.Storage.Dir, "empty storage dir falls back to default")
	assert.Same(t, &cfg.Core, cfg.CoreConfig())
}

func TestLoadConfigStorageOverride(t *testing.T) {
	t.Setenv("STORAGE_DIR", "/var/lib/schoolbot")
	path := writeConfig(t, `
telegram:
  token: "123:abc"
storage:
  dir: materials
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/schoolbot", cfg.Storage.Dir)
}

func TestLoadConfigMissingToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	path := writeConfig(t, `
telegram:
  admin_ids: [1]
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestMenus(t *testing.T) {
	student := mainMenu(false)
	admin := mainMenu(true)
	assert.Len(t, student.ReplyKeyboard, 2)
	assert.Len(t, admin.ReplyKeyboard, 3)
	assert.Equal(t, MenuAdmin, admin.ReplyKeyboard[2][0].Text)

	panel := adminMenu()
	require.Len(t, panel.ReplyKeyboard, 3)
	assert.Equal(t, AdminToMain, panel.ReplyKeyboard[2][0].Text)
}
