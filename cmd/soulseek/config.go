package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kcarretto/soulmesh/client"
)

// fileConfig is the shape of an optional soulseek.toml config file. Flags
// and environment variables always take precedence over values loaded
// here; fileConfig only fills in what wasn't set on the command line.
type fileConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Server   string `toml:"server"`
	Port     uint   `toml:"port"`

	Distributed struct {
		Enable      bool `toml:"enable"`
		AcceptChild bool `toml:"accept_children"`
		ChildLimit  int  `toml:"child_limit"`
	} `toml:"distributed"`

	RateLimit struct {
		UploadBytesPerSec   int64 `toml:"upload_bytes_per_sec"`
		DownloadBytesPerSec int64 `toml:"download_bytes_per_sec"`
	} `toml:"rate_limit"`

	AutoAck struct {
		PrivateMessages        bool `toml:"private_messages"`
		PrivilegeNotifications bool `toml:"privilege_notifications"`
	} `toml:"auto_ack"`
}

// loadFileConfig reads a soulseek.toml file if it exists. A missing file
// is not an error - the CLI works fine from flags/env alone.
func loadFileConfig(path string) (*fileConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &fileConfig{}, nil
	}

	var cfg fileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// applyToOptions layers the file config's distributed/rate-limit/auto-ack
// settings onto opts. Fields covered by flags (server address, listen
// port) are applied by the caller instead, since those already have
// flag-provided defaults.
func (fc *fileConfig) applyToOptions(opts *client.Options) {
	if fc.Distributed.Enable {
		opts.EnableDistributedNetwork = true
		opts.AcceptDistributedChildren = fc.Distributed.AcceptChild
		if fc.Distributed.ChildLimit > 0 {
			opts.DistributedChildLimit = fc.Distributed.ChildLimit
		}
	}
	if fc.RateLimit.UploadBytesPerSec > 0 {
		opts.UploadRateLimit = fc.RateLimit.UploadBytesPerSec
	}
	if fc.RateLimit.DownloadBytesPerSec > 0 {
		opts.DownloadRateLimit = fc.RateLimit.DownloadBytesPerSec
	}
	opts.AutoAcknowledgePrivateMessages = fc.AutoAck.PrivateMessages
	opts.AutoAcknowledgePrivilegeNotifications = fc.AutoAck.PrivilegeNotifications
}

// defaultConfigPath is the config file the CLI looks for in the working
// directory when -config isn't given.
const defaultConfigPath = "soulseek.toml"

// defaultSearchTimeout mirrors the flag default so config-driven callers
// have a sane fallback without needing to parse flags.
const defaultSearchTimeout = 30 * time.Second
