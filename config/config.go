// Package config loads the station's YAML configuration file: the
// node directory, send settings, statistics persistence, delivery
// logging, and message templates.
//
// A missing file is not fatal; the station falls back to defaults the
// same way the legacy INI loader did.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/wsmesh/wsmesh/nodes"
	"github.com/wsmesh/wsmesh/pki"
)

// DefaultTemplate is the original three-line Heltec display layout.
const DefaultTemplate = "{date} {time} ({online}/{total})\nT: {temp}F {snr} snr/{hops} hop\nH: {humidity}% {time_detail}"

// NodeConfig is one entry under "nodes".
type NodeConfig struct {
	ID        string `yaml:"id"`         // "!9e7656a8" or decimal
	PublicKey string `yaml:"public_key"` // base64, optional
}

// Settings is the "settings" section. Durations are whole seconds, as
// in the legacy config file.
type Settings struct {
	SelectedNode         string `yaml:"selected_node"`
	UpdateIntervalSec    int    `yaml:"update_interval"`
	AckRetryTimeoutSec   int    `yaml:"ack_retry_timeout"`
	MaxRetries           int    `yaml:"max_retries"`
	ConfirmationDelay    int    `yaml:"confirmation_delay"`
	Channel              uint8  `yaml:"channel"`
	AutoBootTimeoutSec   int    `yaml:"auto_boot_timeout"`
	ReconnectIntervalSec int    `yaml:"usb_reconnect_interval"`
}

// Stats is the "stats" section.
type Stats struct {
	File          string `yaml:"file"`
	AutosaveEvery int    `yaml:"autosave_every"`
}

// Logging is the "logging" section (the CSV delivery log, not the
// debug log).
type Logging struct {
	File            string `yaml:"file"`
	AutoSaveSeconds int    `yaml:"auto_save_interval"`
	RetentionDays   int    `yaml:"retention_days"`
}

// Templates is the "templates" section.
type Templates struct {
	Selected    string            `yaml:"selected"`
	Definitions map[string]string `yaml:"definitions"`
}

// Config is the full station configuration.
type Config struct {
	Nodes     map[string]NodeConfig `yaml:"nodes"`
	Settings  Settings              `yaml:"settings"`
	Stats     Stats                 `yaml:"stats"`
	Logging   Logging               `yaml:"logging"`
	Templates Templates             `yaml:"templates"`
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Nodes: map[string]NodeConfig{
			"default": {ID: "12345678"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Settings.SelectedNode == "" {
		for name := range c.Nodes {
			c.Settings.SelectedNode = name
			break
		}
	}
	if c.Settings.UpdateIntervalSec <= 0 {
		c.Settings.UpdateIntervalSec = 60
	}
	if c.Settings.AckRetryTimeoutSec <= 0 {
		c.Settings.AckRetryTimeoutSec = 60
	}
	if c.Settings.MaxRetries < 0 {
		c.Settings.MaxRetries = 0
	} else if c.Settings.MaxRetries == 0 {
		c.Settings.MaxRetries = 1
	}
	if c.Settings.ConfirmationDelay <= 0 {
		c.Settings.ConfirmationDelay = 5
	}
	if c.Settings.AutoBootTimeoutSec <= 0 {
		c.Settings.AutoBootTimeoutSec = 10
	}
	if c.Settings.ReconnectIntervalSec <= 0 {
		c.Settings.ReconnectIntervalSec = 10
	}
	if c.Stats.File == "" {
		c.Stats.File = "snr_stats.json"
	}
	if c.Stats.AutosaveEvery <= 0 {
		c.Stats.AutosaveEvery = 10
	}
	if c.Logging.File == "" {
		c.Logging.File = "meshtastic_log.csv"
	}
	if c.Logging.AutoSaveSeconds <= 0 {
		c.Logging.AutoSaveSeconds = 300
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
	if c.Templates.Selected == "" {
		c.Templates.Selected = "template1"
	}
	if c.Templates.Definitions == nil {
		c.Templates.Definitions = map[string]string{}
	}
	if _, ok := c.Templates.Definitions[c.Templates.Selected]; !ok {
		c.Templates.Definitions[c.Templates.Selected] = DefaultTemplate
	}
}

// Load reads the configuration file. A missing file returns the
// defaults without error, matching the legacy behavior.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"path":     path,
		}).Warn("Config file not found, using defaults")
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("config %s: no nodes defined", path)
	}
	cfg.applyDefaults()

	if _, ok := cfg.Nodes[cfg.Settings.SelectedNode]; !ok {
		return nil, fmt.Errorf("config %s: selected node %q not in nodes", path, cfg.Settings.SelectedNode)
	}

	logrus.WithFields(logrus.Fields{
		"function":      "Load",
		"path":          path,
		"nodes":         len(cfg.Nodes),
		"selected_node": cfg.Settings.SelectedNode,
		"template":      cfg.Templates.Selected,
	}).Info("Configuration loaded")

	return cfg, nil
}

// Directory builds the immutable node directory from the config.
func (c *Config) Directory() ([]nodes.Node, error) {
	entries := make([]nodes.Node, 0, len(c.Nodes))
	for name, nc := range c.Nodes {
		id, err := nodes.ParseID(nc.ID)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", name, err)
		}
		key, err := pki.ParsePublicKey(nc.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", name, err)
		}
		entries = append(entries, nodes.Node{Name: name, ID: id, PublicKey: key})
	}
	return entries, nil
}

// SelectedTemplate returns the active message template body.
func (c *Config) SelectedTemplate() string {
	if tpl, ok := c.Templates.Definitions[c.Templates.Selected]; ok {
		return tpl
	}
	return DefaultTemplate
}

// UpdateInterval returns the send interval as a duration.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.Settings.UpdateIntervalSec) * time.Second
}

// AckRetryTimeout returns the ack timeout as a duration.
func (c *Config) AckRetryTimeout() time.Duration {
	return time.Duration(c.Settings.AckRetryTimeoutSec) * time.Second
}

// ConfirmationDelayDuration returns the confirmation delay as a
// duration.
func (c *Config) ConfirmationDelayDuration() time.Duration {
	return time.Duration(c.Settings.ConfirmationDelay) * time.Second
}

// LogAutoSaveInterval returns the CSV autosave interval as a duration.
func (c *Config) LogAutoSaveInterval() time.Duration {
	return time.Duration(c.Logging.AutoSaveSeconds) * time.Second
}
