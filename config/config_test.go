package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
nodes:
  yang:
    id: "!9e7656a8"
  ying:
    id: "!433c9a75"
settings:
  selected_node: yang
  update_interval: 120
  ack_retry_timeout: 45
  max_retries: 2
  confirmation_delay: 7
  channel: 1
stats:
  file: stats/snr.json
  autosave_every: 5
logging:
  file: delivery.csv
  auto_save_interval: 60
  retention_days: 3
templates:
  selected: template2
  definitions:
    template2: "T: {temp}F {snr} snr"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "yang", cfg.Settings.SelectedNode)
	assert.Equal(t, 2*time.Minute, cfg.UpdateInterval())
	assert.Equal(t, 45*time.Second, cfg.AckRetryTimeout())
	assert.Equal(t, 2, cfg.Settings.MaxRetries)
	assert.Equal(t, 7*time.Second, cfg.ConfirmationDelayDuration())
	assert.Equal(t, uint8(1), cfg.Settings.Channel)
	assert.Equal(t, "stats/snr.json", cfg.Stats.File)
	assert.Equal(t, 5, cfg.Stats.AutosaveEvery)
	assert.Equal(t, time.Minute, cfg.LogAutoSaveInterval())
	assert.Equal(t, 3, cfg.Logging.RetentionDays)
	assert.Equal(t, "T: {temp}F {snr} snr", cfg.SelectedTemplate())

	entries, err := cfg.Directory()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
nodes:
  yang:
    id: "!9e7656a8"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "yang", cfg.Settings.SelectedNode)
	assert.Equal(t, time.Minute, cfg.UpdateInterval())
	assert.Equal(t, time.Minute, cfg.AckRetryTimeout())
	assert.Equal(t, 1, cfg.Settings.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.ConfirmationDelayDuration())
	assert.Equal(t, "snr_stats.json", cfg.Stats.File)
	assert.Equal(t, 10, cfg.Stats.AutosaveEvery)
	assert.Equal(t, "meshtastic_log.csv", cfg.Logging.File)
	assert.Equal(t, 7, cfg.Logging.RetentionDays)
	assert.Equal(t, DefaultTemplate, cfg.SelectedTemplate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.NotEmpty(t, cfg.Nodes)
	assert.NotEmpty(t, cfg.Settings.SelectedNode)
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	_, err := Load(writeConfig(t, "nodes: [broken"))
	assert.Error(t, err, "malformed yaml")

	_, err = Load(writeConfig(t, "settings:\n  update_interval: 60\n"))
	assert.Error(t, err, "no nodes")

	_, err = Load(writeConfig(t, `
nodes:
  yang:
    id: "!9e7656a8"
settings:
  selected_node: nobody
`))
	assert.Error(t, err, "selected node not defined")
}

func TestDirectoryRejectsBadNodeEntries(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
nodes:
  yang:
    id: "not-an-id"
`))
	require.NoError(t, err)
	_, err = cfg.Directory()
	assert.Error(t, err)

	cfg, err = Load(writeConfig(t, `
nodes:
  yang:
    id: "!9e7656a8"
    public_key: "tooshort"
`))
	require.NoError(t, err)
	_, err = cfg.Directory()
	assert.Error(t, err)
}

func TestMaxRetriesZeroMeansDefaultNegativeMeansNever(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
nodes:
  yang:
    id: "1"
settings:
  max_retries: -1
`))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Settings.MaxRetries)
}
