package reader

import (
	"net"
	"net/http"
	"time"

	"histflow/config"
	ratemetrics "histflow/internal/metrics/rate"
)

// NewHTTPClient builds the pooled client an exchange SDK is handed. Outbound
// connections bind to pool.LocalIP when it is set. Every response passes
// through the weight and throttling transport.
func NewHTTPClient(exchange string, pool config.ConnectionPoolConfig, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout,
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if pool.LocalIP != "" {
		if ip := net.ParseIP(pool.LocalIP); ip != nil {
			dialer.LocalAddr = &net.TCPAddr{IP: ip}
		}
	}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Transport: ratemetrics.NewTransport(exchange, transport),
		Timeout:   timeout,
	}
}
