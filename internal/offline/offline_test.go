// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"testing"
)

// =============================================================================
// LOCALHOST DETECTION
// =============================================================================

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"LOCALHOST", true},
		{"localhost:11434", true},
		{"127.0.0.1", true},
		{"127.0.0.1:4318", true},
		{"127.1.2.3", true},
		{"::1", true},
		{"[::1]", true},
		{"[::1]:11434", true},
		{"0:0:0:0:0:0:0:1", true},

		{"", false},
		{"example.com", false},
		{"localhost.example.com", false},
		{"192.168.1.10", false},
		{"10.0.0.1:11434", false},
		{"0.0.0.0", false},
	}
	for _, tt := range tests {
		if got := IsLocalhost(tt.host); got != tt.want {
			t.Errorf("IsLocalhost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

// =============================================================================
// POLICY
// =============================================================================

func TestCheckURL(t *testing.T) {
	on, off := Policy{Enabled: true}, Policy{}

	tests := []struct {
		name    string
		policy  Policy
		url     string
		wantErr error
	}{
		{"local ollama offline", on, "http://localhost:11434", nil},
		{"loopback https offline", on, "https://127.0.0.1:8443/v1", nil},
		{"remote offline", on, "http://gpu-box.lan:11434", ErrNonLocalhost},
		{"remote online", off, "https://api.example.com/v1", nil},
		{"file scheme online", off, "file:///etc/passwd", ErrInvalidURLScheme},
		{"javascript scheme offline", on, "javascript:alert(1)", ErrInvalidURLScheme},
		{"no scheme", off, "localhost:11434", ErrInvalidURLScheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.CheckURL(tt.url)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CheckURL(%q) = %v, want nil", tt.url, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestCheckProvider(t *testing.T) {
	on, off := Policy{Enabled: true}, Policy{}

	if err := on.CheckProvider("ollama", "http://localhost:11434"); err != nil {
		t.Errorf("local ollama: %v", err)
	}
	if err := on.CheckProvider("openai", "http://localhost:11434/v1"); err != nil {
		t.Errorf("openai against local endpoint: %v", err)
	}
	if err := on.CheckProvider("openai", ""); !errors.Is(err, ErrCloudBlocked) {
		t.Errorf("hosted openai offline = %v, want ErrCloudBlocked", err)
	}
	if err := on.CheckProvider("anthropic", ""); !errors.Is(err, ErrCloudBlocked) {
		t.Errorf("anthropic offline = %v, want ErrCloudBlocked", err)
	}
	if err := on.CheckProvider("ollama", "http://10.0.0.5:11434"); !errors.Is(err, ErrNonLocalhost) {
		t.Errorf("remote ollama offline = %v, want ErrNonLocalhost", err)
	}

	if err := off.CheckProvider("anthropic", ""); err != nil {
		t.Errorf("anthropic online: %v", err)
	}
	if err := off.CheckProvider("openai", ""); err != nil {
		t.Errorf("hosted openai online: %v", err)
	}
	if err := off.CheckProvider("ollama", "ftp://host"); !errors.Is(err, ErrInvalidURLScheme) {
		t.Errorf("ftp ollama = %v, want ErrInvalidURLScheme", err)
	}
}

func TestCheckCollector(t *testing.T) {
	on := Policy{Enabled: true}

	if err := on.CheckCollector("localhost:4318"); err != nil {
		t.Errorf("local collector: %v", err)
	}
	if err := on.CheckCollector(""); err != nil {
		t.Errorf("empty collector: %v", err)
	}
	if err := on.CheckCollector("otel.example.com:4318"); !errors.Is(err, ErrNonLocalhost) {
		t.Errorf("remote collector = %v, want ErrNonLocalhost", err)
	}
	if err := (Policy{}).CheckCollector("otel.example.com:4318"); err != nil {
		t.Errorf("remote collector online: %v", err)
	}
}
