package tlsutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

const DefaultTimeout = 30 * time.Second

// Options configures the outbound HTTP client used for sandbox calls.
type Options struct {
	// CertFile and KeyFile enable mTLS; both or neither must be set.
	CertFile string
	KeyFile  string
	// CAFile extends the system roots.
	CAFile  string
	Timeout time.Duration
	// Wrap decorates the transport, e.g. with metrics instrumentation.
	Wrap func(http.RoundTripper) http.RoundTripper
}

// NewClient creates the sandbox HTTP client, with a client certificate when configured
func NewClient(opts Options) (*http.Client, error) {
	if (opts.CertFile == "") != (opts.KeyFile == "") {
		return nil, fmt.Errorf("client certificate and key must be configured together")
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if opts.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load key pair: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if opts.CAFile != "" {
		rootCAs, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to get system cert pool: %w", err)
		}
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read ca file: %w", err)
		}
		if ok := rootCAs.AppendCertsFromPEM(pem); !ok {
			return nil, fmt.Errorf("failed to append CA certs")
		}
		tlsCfg.RootCAs = rootCAs
	}

	nd := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsCfg,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := nd.DialContext(ctx, network, addr)
			if err != nil {
				slog.ErrorContext(ctx, "sandbox dial failed", "addr", addr, "error", err)
			}
			return conn, err
		},
	}

	var rt http.RoundTripper = tr
	if opts.Wrap != nil {
		rt = opts.Wrap(rt)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
	}, nil
}
