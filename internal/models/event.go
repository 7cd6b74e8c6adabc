// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package models defines the shared domain types: visitor interaction events,
// fingerprints, threat levels, and durable activity records. Events are
// immutable once created; the ingestion boundary produces them fully enriched
// (network flags, device descriptors) and every detector consumes them
// read-only.
package models

import (
	"time"
)

// EventKind enumerates the observed interaction types.
type EventKind string

const (
	EventPageView     EventKind = "page_view"
	EventClick        EventKind = "click"
	EventSearch       EventKind = "search"
	EventFormSubmit   EventKind = "form_submit"
	EventFormFail     EventKind = "form_fail"
	EventDownload     EventKind = "download"
	EventCopy         EventKind = "copy"
	EventScreenshot   EventKind = "screenshot"
	EventPrint        EventKind = "print"
	EventScroll       EventKind = "scroll"
	EventTabSwitch    EventKind = "tab_switch"
	EventSessionStart EventKind = "session_start"
	EventSessionEnd   EventKind = "session_end"
	EventLoginAttempt EventKind = "login_attempt"
	EventMediaView    EventKind = "media_view"
)

// ValidEventKinds is the closed set accepted at the pipeline entry point.
var ValidEventKinds = map[EventKind]bool{
	EventPageView:     true,
	EventClick:        true,
	EventSearch:       true,
	EventFormSubmit:   true,
	EventFormFail:     true,
	EventDownload:     true,
	EventCopy:         true,
	EventScreenshot:   true,
	EventPrint:        true,
	EventScroll:       true,
	EventTabSwitch:    true,
	EventSessionStart: true,
	EventSessionEnd:   true,
	EventLoginAttempt: true,
	EventMediaView:    true,
}

// NetworkFlags carries the network derivations computed by the ingestion
// boundary. The core never performs this enrichment itself.
type NetworkFlags struct {
	// Tor indicates the originating address is a known anonymizing-network
	// exit node.
	Tor bool `json:"tor"`

	// VPN indicates a commercial VPN egress address.
	VPN bool `json:"vpn"`

	// OpenProxy indicates a known open proxy.
	OpenProxy bool `json:"open_proxy"`

	// Hosting indicates a datacenter / hosting-provider address, which
	// ordinary visitors rarely browse from.
	Hosting bool `json:"hosting"`
}

// Anonymized reports whether any anonymizing-network indicator is set.
func (f NetworkFlags) Anonymized() bool {
	return f.Tor || f.OpenProxy
}

// DeviceInfo carries parsed device and browser descriptors.
type DeviceInfo struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	DeviceType     string `json:"device_type,omitempty"` // desktop, mobile, tablet
	UserAgent      string `json:"user_agent,omitempty"`

	// FreshProfile indicates a browser profile with no accumulated state
	// (no cookies, empty local storage) at first contact.
	FreshProfile bool `json:"fresh_profile,omitempty"`

	// VirtualMachine indicates VM or emulator fingerprint markers.
	VirtualMachine bool `json:"virtual_machine,omitempty"`

	// PrivacyHardened indicates aggressive anti-fingerprinting configuration
	// (canvas blocking, spoofed headers, disabled APIs).
	PrivacyHardened bool `json:"privacy_hardened,omitempty"`
}

// Event is one observed visitor interaction on a case-tracking page.
// Immutable once created.
type Event struct {
	ID string `json:"id" validate:"required"`

	// Fingerprint is the stable pseudonymous visitor identity used to
	// correlate interactions over time. It is never a real identity.
	Fingerprint string `json:"fingerprint" validate:"required,min=8"`

	// CaseID identifies the case whose pages were visited.
	CaseID string `json:"case_id" validate:"required"`

	IPAddress string    `json:"ip_address" validate:"required,ip"`
	Path      string    `json:"path" validate:"required"`
	Kind      EventKind `json:"kind" validate:"required,eventkind"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp" validate:"required"`

	// Payload holds kind-specific measurements: mouse and typing telemetry,
	// scroll depth, search text, dwell times, zoom levels.
	Payload map[string]any `json:"payload,omitempty"`

	Network NetworkFlags `json:"network"`
	Device  DeviceInfo   `json:"device"`

	// Geolocation, when the boundary layer resolved one. Zero coordinates
	// mean unknown.
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// PayloadString returns a string payload field, or "" when absent.
func (e *Event) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// PayloadFloat returns a numeric payload field, or 0 when absent.
// JSON decoding produces float64 for all numbers; integer values stored
// directly by producers are widened.
func (e *Event) PayloadFloat(key string) float64 {
	if e.Payload == nil {
		return 0
	}
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// PayloadBool returns a boolean payload field, or false when absent.
func (e *Event) PayloadBool(key string) bool {
	if e.Payload == nil {
		return false
	}
	if b, ok := e.Payload[key].(bool); ok {
		return b
	}
	return false
}

// HasLocation reports whether the event carries resolved coordinates.
// The sentinel (0, 0) means geolocation is unavailable.
func (e *Event) HasLocation() bool {
	return e.Latitude != 0 || e.Longitude != 0
}
