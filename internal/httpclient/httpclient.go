// Package httpclient builds outbound HTTP clients shared by the handoff
// client and the OpenAI-compatible generation provider.
package httpclient

import (
	"net/http"
	"time"
)

// New returns an http.Client configured for outbound requests. Timeout bounds
// a single request; callers layer retries on top.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(),
	}
}

// Transport returns a clone of the default transport so callers can wrap it
// without mutating process-wide state.
func Transport() *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	return base.Clone()
}
