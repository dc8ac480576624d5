package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// 出站连接池与握手的统一口径
const (
	dialTimeout           = 30 * time.Second
	dialKeepAlive         = 30 * time.Second
	maxIdleConns          = 100
	idleConnTimeout       = 90 * time.Second
	handshakeTimeout      = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
)

// aeadCipherSuites 是唯一允许协商的密码套件集合
var aeadCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// Hardened returns the TLS configuration shared by listeners and
// outbound clients: TLS 1.2 minimum, AEAD cipher suites only.
// Each call returns a fresh config so callers may tweak their copy.
func Hardened() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: append([]uint16(nil), aeadCipherSuites...),
	}
}

// newTransport builds the pooled transport behind NewHTTPClient.
func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: dialKeepAlive,
	}
	return &http.Transport{
		TLSClientConfig:       Hardened(),
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   handshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
	}
}

// NewHTTPClient returns an http.Client with the hardened TLS setup and
// its own connection pool. Drop-in replacement for
// &http.Client{Timeout: timeout}.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}
