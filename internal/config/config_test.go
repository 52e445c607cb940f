package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 3600, cfg.Frequency)
	require.Equal(t, 6513, cfg.NetconfPort)
	require.Equal(t, "whois.radb.net", cfg.IRRDHost)
	require.Equal(t, 43, cfg.IRRDPort)
	require.Equal(t, "bgpfu", cfg.EphemeralDB)
}

func TestMergeYAMLOnlyAppliesUnsetFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
frequency: 60
irrd_host: irr.example.net
ephemeral_db: custom
`), 0o600))

	cfg := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, cfg)
	require.NoError(t, fs.Parse([]string{"--ephemeral-db=explicit"}))

	require.NoError(t, MergeYAML(cfg, path, fs.Changed))

	require.Equal(t, 60, cfg.Frequency, "unset flag takes the file's value")
	require.Equal(t, "irr.example.net", cfg.IRRDHost, "unset flag takes the file's value")
	require.Equal(t, "explicit", cfg.EphemeralDB, "explicitly-set flag wins over the file")
}

func TestValidateRequiresCoreFields(t *testing.T) {
	cfg := Defaults()
	require.Error(t, cfg.Validate())

	cfg.NetconfHost = "device.example.net"
	cfg.CACertPath = "/tmp/ca.pem"
	cfg.ClientCertPath = "/tmp/client.pem"
	cfg.ClientKeyPath = "/tmp/client.key"
	require.NoError(t, cfg.Validate())
}
