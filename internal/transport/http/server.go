// Package httptransport builds the http.Server the activity API runs on.
package httptransport

import (
	"net/http"
	"time"
)

// ServerConfig bounds request handling for the activity API. Dashboard
// clients poll the aggregate endpoints on keep-alive connections, so the
// idle and header timeouts are always set.
type ServerConfig struct {
	Address           string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// NewServer builds an http.Server from the config. A zero ReadHeaderTimeout
// falls back to two seconds so slow-header clients cannot pin connections.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	headerTimeout := cfg.ReadHeaderTimeout
	if headerTimeout == 0 {
		headerTimeout = 2 * time.Second
	}

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: headerTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
