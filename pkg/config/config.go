/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and persists the target configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	// ConfigFileName is the name of config file
	ConfigFileName = "config.yaml"

	DefaultTargetIQN                = "iqn.2016-09.com.gostor:target0"
	DefaultListenAddress            = "0.0.0.0"
	DefaultPort                     = 3260
	DefaultMaxRecvDataSegmentLength = 8192
	DefaultMaxBurstLength           = 262144
	DefaultFirstBurstLength         = 65536
	DefaultShutdownTimeout          = 10 * time.Second
	DefaultAPIHost                  = "tcp://127.0.0.1:23457"

	envPrefix = "ISCSITGT"
)

var (
	configDir = os.Getenv("GOSTOR_CONFIG")
)

// CHAPCredential is a CHAP user name and secret.
type CHAPCredential struct {
	Name   string `mapstructure:"name" yaml:"name" json:"name"`
	Secret string `mapstructure:"secret" yaml:"secret" json:"-"`
}

// LUN describes one logical unit exported by the target.
type LUN struct {
	ID                uint8    `mapstructure:"id" yaml:"id" json:"id"`
	Name              string   `mapstructure:"name" yaml:"name,omitempty" json:"name,omitempty"`
	Path              string   `mapstructure:"path" yaml:"path" json:"path"`
	BackingStore      string   `mapstructure:"backing_store" yaml:"backing_store,omitempty" json:"backingStore,omitempty"`
	ReadOnly          bool     `mapstructure:"read_only" yaml:"read_only,omitempty" json:"readOnly"`
	AllowedInitiators []string `mapstructure:"allowed_initiators" yaml:"allowed_initiators,omitempty" json:"allowedInitiators,omitempty"`
}

type Config struct {
	TargetIQN     string `mapstructure:"target_iqn" yaml:"target_iqn"`
	TargetAlias   string `mapstructure:"target_alias" yaml:"target_alias,omitempty"`
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
	Port          int    `mapstructure:"port" yaml:"port"`
	// MaxConnections limits concurrently accepted TCP connections, 0 means unlimited.
	MaxConnections           int           `mapstructure:"max_connections" yaml:"max_connections,omitempty"`
	MaxRecvDataSegmentLength uint32        `mapstructure:"max_recv_data_segment_length" yaml:"max_recv_data_segment_length"`
	MaxBurstLength           uint32        `mapstructure:"max_burst_length" yaml:"max_burst_length"`
	FirstBurstLength         uint32        `mapstructure:"first_burst_length" yaml:"first_burst_length"`
	ShutdownTimeout          time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// MutualCHAP is the target's own credential, presented when an
	// initiator asks the target to authenticate itself.
	MutualCHAP *CHAPCredential `mapstructure:"mutual_chap" yaml:"mutual_chap,omitempty"`
	// Initiators holds the CHAP credentials initiators must present.
	// CHAP is required as soon as this list is non-empty.
	Initiators []CHAPCredential `mapstructure:"initiators" yaml:"initiators,omitempty"`
	LUNs       []LUN            `mapstructure:"luns" yaml:"luns,omitempty"`

	APIHosts []string `mapstructure:"api_hosts" yaml:"api_hosts,omitempty"`
	LogLevel string   `mapstructure:"log_level" yaml:"log_level,omitempty"`
}

func init() {
	if configDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			home = "."
		}
		configDir = filepath.Join(home, ".iscsitgt")
	}
}

// ConfigDir returns the directory the configuration file is stored in
func ConfigDir() string {
	return configDir
}

// DefaultConfigPath returns the configuration file inside ConfigDir.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}

// Default returns a configuration with every default applied and no LUNs.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *Config) {
	if cfg.TargetIQN == "" {
		cfg.TargetIQN = DefaultTargetIQN
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxRecvDataSegmentLength == 0 {
		cfg.MaxRecvDataSegmentLength = DefaultMaxRecvDataSegmentLength
	}
	if cfg.MaxBurstLength == 0 {
		cfg.MaxBurstLength = DefaultMaxBurstLength
	}
	if cfg.FirstBurstLength == 0 {
		cfg.FirstBurstLength = DefaultFirstBurstLength
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(cfg.APIHosts) == 0 {
		cfg.APIHosts = []string{DefaultAPIHost}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks the configuration for values the target cannot run with.
func (cfg *Config) Validate() error {
	if !strings.HasPrefix(cfg.TargetIQN, "iqn.") && !strings.HasPrefix(cfg.TargetIQN, "eui.") && !strings.HasPrefix(cfg.TargetIQN, "naa.") {
		return fmt.Errorf("bad parameter: target name %q is not an iqn., eui. or naa. name", cfg.TargetIQN)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("bad parameter: port %d out of range", cfg.Port)
	}
	if cfg.MaxRecvDataSegmentLength < 512 || cfg.MaxRecvDataSegmentLength > 16777215 {
		return fmt.Errorf("bad parameter: max_recv_data_segment_length %d out of range", cfg.MaxRecvDataSegmentLength)
	}
	if cfg.FirstBurstLength > cfg.MaxBurstLength {
		return fmt.Errorf("bad parameter: first_burst_length exceeds max_burst_length")
	}
	for _, c := range cfg.Initiators {
		if c.Name == "" || c.Secret == "" {
			return fmt.Errorf("bad parameter: initiator credential needs both name and secret")
		}
	}
	if cfg.MutualCHAP != nil && (cfg.MutualCHAP.Name == "" || cfg.MutualCHAP.Secret == "") {
		return fmt.Errorf("bad parameter: mutual_chap needs both name and secret")
	}
	seen := map[uint8]bool{}
	for _, l := range cfg.LUNs {
		if seen[l.ID] {
			return fmt.Errorf("conflict: LUN %d configured twice", l.ID)
		}
		seen[l.ID] = true
		if l.Path == "" && l.BackingStore != "null" {
			return fmt.Errorf("bad parameter: LUN %d has no path", l.ID)
		}
	}
	return nil
}

// RequiresCHAP reports whether initiators must authenticate with CHAP.
func (cfg *Config) RequiresCHAP() bool {
	return len(cfg.Initiators) > 0
}

// InitiatorCredential returns the CHAP credential registered under name.
func (cfg *Config) InitiatorCredential(name string) (CHAPCredential, bool) {
	for _, c := range cfg.Initiators {
		if c.Name == name {
			return c, true
		}
	}
	return CHAPCredential{}, false
}

// PortalAddress is the host:port the target listens on.
func (cfg *Config) PortalAddress() string {
	return net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.Port))
}

// Load reads the configuration file at path, applies ISCSITGT_* environment
// overrides and defaults. A missing file yields the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("%s - %v", path, err)
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("%s - %v", path, err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s - %v", path, err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target_iqn", DefaultTargetIQN)
	v.SetDefault("listen_address", DefaultListenAddress)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("max_recv_data_segment_length", DefaultMaxRecvDataSegmentLength)
	v.SetDefault("max_burst_length", DefaultMaxBurstLength)
	v.SetDefault("first_burst_length", DefaultFirstBurstLength)
	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout.String())
	v.SetDefault("log_level", "info")
}

// Save writes the configuration as YAML. The file may contain CHAP secrets
// so it is created owner-readable only.
func (cfg *Config) Save(filename string) error {
	if filename == "" {
		return fmt.Errorf("Can't save config with empty filename")
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600)
}
