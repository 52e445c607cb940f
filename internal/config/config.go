// Package config assembles the agent's settings from CLI flags with an
// optional YAML overlay (SPEC_FULL.md §4.6), grounded on
// aldrin-isaac-newtron's cobra/pflag CLI wiring and newtest/parser.go's
// yaml.v3 file-reading idiom.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds every setting the CLI surface of spec.md §6 exposes, plus the
// ambient additions of SPEC_FULL.md §6 (--config, --log-format, --log-level).
type Config struct {
	Frequency int `yaml:"frequency"` // seconds; 0 = one-shot

	NetconfHost string `yaml:"netconf_host"`
	NetconfPort int    `yaml:"netconf_port"`

	CACertPath     string `yaml:"ca_cert_path"`
	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
	TLSServerName  string `yaml:"tls_server_name"`

	IRRDHost string `yaml:"irrd_host"`
	IRRDPort int    `yaml:"irrd_port"`

	EphemeralDB string `yaml:"ephemeral_db"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// ConfigFile is the --config flag's own value; it is never itself
	// overridden by the YAML file it names.
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config populated with spec.md §6's default values.
func Defaults() *Config {
	return &Config{
		Frequency:   3600,
		NetconfPort: 6513,
		IRRDHost:    "whois.radb.net",
		IRRDPort:    43,
		EphemeralDB: "bgpfu",
		LogLevel:    "warn",
		LogFormat:   "text",
	}
}

// BindFlags registers cfg's fields onto fs, pre-populated with cfg's current
// (default) values.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.Frequency, "frequency", cfg.Frequency, "update period, seconds; 0 = one-shot")
	fs.StringVar(&cfg.NetconfHost, "netconf-host", cfg.NetconfHost, "Junos NETCONF-over-TLS host")
	fs.IntVar(&cfg.NetconfPort, "netconf-port", cfg.NetconfPort, "Junos NETCONF-over-TLS port")
	fs.StringVar(&cfg.CACertPath, "ca-cert-path", cfg.CACertPath, "PEM file: CA bundle to verify the device certificate")
	fs.StringVar(&cfg.ClientCertPath, "client-cert-path", cfg.ClientCertPath, "PEM file: client certificate")
	fs.StringVar(&cfg.ClientKeyPath, "client-key-path", cfg.ClientKeyPath, "PEM file: client private key")
	fs.StringVar(&cfg.TLSServerName, "tls-server-name", cfg.TLSServerName, "SNI override (default: derived from --netconf-host)")
	fs.StringVar(&cfg.IRRDHost, "irrd-host", cfg.IRRDHost, "IRRd whois server host")
	fs.IntVar(&cfg.IRRDPort, "irrd-port", cfg.IRRDPort, "IRRd whois server port")
	fs.StringVar(&cfg.EphemeralDB, "ephemeral-db", cfg.EphemeralDB, "Junos ephemeral instance name")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log verbosity (panic, fatal, error, warn, info, debug, trace)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "optional YAML config file overlay")
}

// MergeYAML reads path and applies its values onto cfg, but only for fields
// whose corresponding flag was not explicitly set on the command line
// (isSet) — flags take precedence over the file, the file takes precedence
// over Defaults() (SPEC_FULL.md §4.6).
func MergeYAML(cfg *Config, path string, isSet func(flagName string) bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	overlay("frequency", isSet, file.Frequency != 0, func() { cfg.Frequency = file.Frequency })
	overlay("netconf-host", isSet, file.NetconfHost != "", func() { cfg.NetconfHost = file.NetconfHost })
	overlay("netconf-port", isSet, file.NetconfPort != 0, func() { cfg.NetconfPort = file.NetconfPort })
	overlay("ca-cert-path", isSet, file.CACertPath != "", func() { cfg.CACertPath = file.CACertPath })
	overlay("client-cert-path", isSet, file.ClientCertPath != "", func() { cfg.ClientCertPath = file.ClientCertPath })
	overlay("client-key-path", isSet, file.ClientKeyPath != "", func() { cfg.ClientKeyPath = file.ClientKeyPath })
	overlay("tls-server-name", isSet, file.TLSServerName != "", func() { cfg.TLSServerName = file.TLSServerName })
	overlay("irrd-host", isSet, file.IRRDHost != "", func() { cfg.IRRDHost = file.IRRDHost })
	overlay("irrd-port", isSet, file.IRRDPort != 0, func() { cfg.IRRDPort = file.IRRDPort })
	overlay("ephemeral-db", isSet, file.EphemeralDB != "", func() { cfg.EphemeralDB = file.EphemeralDB })
	overlay("log-level", isSet, file.LogLevel != "", func() { cfg.LogLevel = file.LogLevel })
	overlay("log-format", isSet, file.LogFormat != "", func() { cfg.LogFormat = file.LogFormat })
	return nil
}

func overlay(flagName string, isSet func(string) bool, present bool, apply func()) {
	if isSet(flagName) || !present {
		return
	}
	apply()
}

// Validate reports the process-fatal configuration errors spec.md §7
// attributes to CLI parse/cert-load failure.
func (c *Config) Validate() error {
	if c.NetconfHost == "" {
		return fmt.Errorf("config: --netconf-host is required")
	}
	if c.CACertPath == "" || c.ClientCertPath == "" || c.ClientKeyPath == "" {
		return fmt.Errorf("config: --ca-cert-path, --client-cert-path and --client-key-path are all required")
	}
	if c.Frequency < 0 {
		return fmt.Errorf("config: --frequency must be >= 0")
	}
	return nil
}
