package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	BackendURL   string
	HTTPTimeout  time.Duration
	PollInterval time.Duration
	PollCeiling  time.Duration
	DrainSpacing time.Duration
	TreeTTL      time.Duration
	SnapshotTTL  time.Duration
	DBPath       string
	LogPath      string
}

var cfg AppConfig

func Init() AppConfig {
	defaultDir := filepath.Join(os.TempDir(), "kbpicker")

	v := viper.New()
	v.SetConfigFile("config/config.yaml")
	v.SetConfigType("yaml")

	// defaults
	v.SetDefault("picker.backend_url", "http://127.0.0.1:8000")
	v.SetDefault("picker.http_timeout", "30s")
	v.SetDefault("picker.poll_interval", "1s")
	v.SetDefault("picker.poll_ceiling", "2m")
	v.SetDefault("picker.drain_spacing", "1s")
	v.SetDefault("picker.tree_ttl", "5m")
	v.SetDefault("picker.snapshot_ttl", "24h")
	v.SetDefault("picker.db_path", filepath.Join(defaultDir, "picker.db"))
	v.SetDefault("picker.log_path", "")
	_ = v.ReadInConfig()

	cfg = AppConfig{
		BackendURL:   v.GetString("picker.backend_url"),
		HTTPTimeout:  v.GetDuration("picker.http_timeout"),
		PollInterval: v.GetDuration("picker.poll_interval"),
		PollCeiling:  v.GetDuration("picker.poll_ceiling"),
		DrainSpacing: v.GetDuration("picker.drain_spacing"),
		TreeTTL:      v.GetDuration("picker.tree_ttl"),
		SnapshotTTL:  v.GetDuration("picker.snapshot_ttl"),
		DBPath:       v.GetString("picker.db_path"),
		LogPath:      v.GetString("picker.log_path"),
	}
	return cfg
}

func Get() AppConfig { return cfg }
