package netconf

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"
)

// TLSConfig describes the TLS-over-TCP transport parameters for dialing a
// Junos NETCONF server (spec.md §4.4). Certificate/key PEM loading is the
// caller's concern (spec.md §1 Non-goals) — TLSConfig takes an already-built
// tls.Certificate and CA pool.
type TLSConfig struct {
	Host       string
	Port       int // defaults to 6513 if zero
	ClientCert tls.Certificate
	RootCAs    *x509.CertPool
	// ServerName overrides the SNI / certificate-verification name; defaults
	// to Host.
	ServerName string
	DialTimeout time.Duration
}

func (c TLSConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = 6513
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// dialTLS establishes the TCP+TLS transport for a NETCONF session.
func dialTLS(cfg TLSConfig) (net.Conn, error) {
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	serverName := cfg.ServerName
	if serverName == "" {
		serverName = cfg.Host
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cfg.ClientCert},
		RootCAs:      cfg.RootCAs,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}

	dialer := &net.Dialer{Timeout: timeout}
	rawConn, err := dialer.Dial("tcp", cfg.addr())
	if err != nil {
		return nil, &TransportError{Op: "dial", Cause: err}
	}

	conn := tls.Client(rawConn, tlsCfg)
	if err := conn.Handshake(); err != nil {
		rawConn.Close()
		return nil, &AuthenticationError{Cause: err}
	}
	return conn, nil
}
