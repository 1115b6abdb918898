// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNonLocalhost is returned for a remote endpoint in offline mode.
	ErrNonLocalhost = errors.New("offline mode: only localhost endpoints are allowed")

	// ErrCloudBlocked is returned for hosted LLM providers in offline mode.
	ErrCloudBlocked = errors.New("offline mode: hosted LLM providers are disabled")

	// ErrInvalidURLScheme is returned for anything but http and https.
	ErrInvalidURLScheme = errors.New("only http and https endpoints are allowed")
)

// =============================================================================
// POLICY
// =============================================================================

// Policy decides which endpoints may be contacted.
type Policy struct {
	Enabled bool
}

// CheckURL validates an http(s) endpoint. The scheme is always checked;
// the host only when the policy is enabled.
func (p Policy) CheckURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", rawURL, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidURLScheme, rawURL)
	}
	if p.Enabled && !IsLocalhost(parsed.Hostname()) {
		return fmt.Errorf("%w: %s", ErrNonLocalhost, parsed.Host)
	}
	return nil
}

// CheckProvider validates an LLM provider and its base URL. An empty
// baseURL for openai means the hosted API.
func (p Policy) CheckProvider(provider, baseURL string) error {
	switch provider {
	case "anthropic":
		if p.Enabled {
			return fmt.Errorf("%w: %s", ErrCloudBlocked, provider)
		}
		return nil
	case "openai":
		if baseURL == "" {
			if p.Enabled {
				return fmt.Errorf("%w: %s", ErrCloudBlocked, provider)
			}
			return nil
		}
	}
	if baseURL == "" {
		return nil
	}
	return p.CheckURL(baseURL)
}

// CheckCollector validates an OTLP host:port endpoint.
func (p Policy) CheckCollector(endpoint string) error {
	if !p.Enabled || endpoint == "" {
		return nil
	}
	if !IsLocalhost(endpoint) {
		return fmt.Errorf("%w: metrics collector %s", ErrNonLocalhost, endpoint)
	}
	return nil
}

// IsLocalhost reports whether host, with or without a port, is localhost
// or a loopback address.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
