package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/bgpfu/junos-agent/netconf"
)

// NetconfTLSConfig loads the PEM material named by c and builds the
// netconf.TLSConfig Open expects. PEM loading itself is plain crypto/tls +
// crypto/x509 (spec.md §1 treats this as a black box; no ecosystem library
// in the example pack improves on the standard library here — see
// DESIGN.md).
func (c *Config) NetconfTLSConfig() (netconf.TLSConfig, error) {
	cert, err := tls.LoadX509KeyPair(c.ClientCertPath, c.ClientKeyPath)
	if err != nil {
		return netconf.TLSConfig{}, fmt.Errorf("config: loading client certificate/key: %w", err)
	}
	caPEM, err := os.ReadFile(c.CACertPath)
	if err != nil {
		return netconf.TLSConfig{}, fmt.Errorf("config: reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return netconf.TLSConfig{}, fmt.Errorf("config: no certificates parsed from %s", c.CACertPath)
	}

	return netconf.TLSConfig{
		Host:       c.NetconfHost,
		Port:       c.NetconfPort,
		ClientCert: cert,
		RootCAs:    pool,
		ServerName: c.TLSServerName,
	}, nil
}

// IRRDAddr returns the "host:port" dial target for the configured IRRd server.
func (c *Config) IRRDAddr() string {
	return fmt.Sprintf("%s:%d", c.IRRDHost, c.IRRDPort)
}
