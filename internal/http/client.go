package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/rescale/cloudfm/internal/config"
	"github.com/rescale/cloudfm/internal/constants"
	"github.com/rescale/cloudfm/internal/logging"
)

// CreateOptimizedClient creates an HTTP client tuned for large object uploads
// on top of the proxy configuration from ConfigureHTTPClient.
//
//   - Large connection pool for concurrent uploads to one endpoint
//   - HTTP/2 where possible, with DISABLE_HTTP2=true to force HTTP/1.1
//   - HTTP/2 off behind a proxy unless FORCE_HTTP2=true
//   - Compression disabled (uploads are mostly already compressed)
//
// The S3 and Azure backends share this client.
func CreateOptimizedClient(cfg *config.NetworkConfig, logger *logging.Logger) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	client, err := ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; keep its settings as they are
		return client, nil
	}

	tr.MaxIdleConns = 512
	tr.MaxIdleConnsPerHost = 100
	tr.MaxConnsPerHost = 100 // must be >= MaxIdleConnsPerHost
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.TLSHandshakeTimeout = constants.HTTPTLSHandshakeTimeout
	tr.ExpectContinueTimeout = constants.HTTPExpectContinueTimeout
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true

	if err := http2.ConfigureTransport(tr); err != nil {
		logger.Debug().Err(err).Msg("HTTP/2 transport configuration skipped")
	}

	disable := os.Getenv("DISABLE_HTTP2") == "true"
	// Proxies often break HTTP/2 multiplexing mid-transfer
	if ProxyActive(cfg, os.Getenv) && os.Getenv("FORCE_HTTP2") != "true" {
		disable = true
	}
	if disable {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	client.Transport = tr
	client.Timeout = 0 // each operation sets its own deadline
	return client, nil
}
