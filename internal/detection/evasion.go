// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/geo"
	"github.com/caseguard/caseguard/internal/models"
)

// EvasionConfig configures the evasion techniques detector.
type EvasionConfig struct {
	// MaxSpeedKmh is the maximum plausible travel speed between two
	// observations of the same fingerprint.
	MaxSpeedKmh float64 `json:"max_speed_kmh"`

	// MinDistanceKm ignores transitions between nearby locations.
	MinDistanceKm float64 `json:"min_distance_km"`

	// MinTimeDeltaMinutes ignores transitions closer together than this;
	// sub-minute pairs are handled by the session integrity dimension.
	MinTimeDeltaMinutes int `json:"min_time_delta_minutes"`

	// MaxUniqueIPs is the rotation threshold within the lookback window.
	MaxUniqueIPs int `json:"max_unique_ips"`

	// VPNRotationThreshold is the distinct VPN egress count that marks
	// deliberate relay hopping.
	VPNRotationThreshold int `json:"vpn_rotation_threshold"`
}

// DefaultEvasionConfig returns production defaults.
func DefaultEvasionConfig() EvasionConfig {
	return EvasionConfig{
		MaxSpeedKmh:          900,
		MinDistanceKm:        100,
		MinTimeDeltaMinutes:  5,
		MaxUniqueIPs:         4,
		VPNRotationThreshold: 2,
	}
}

// EvasionDetector scores identity and location evasion: implausible
// travel, address rotation, relay hopping and environment spoofing.
type EvasionDetector struct {
	mu       sync.RWMutex
	config   EvasionConfig
	enabled  bool
	resolver geo.Resolver
}

// NewEvasionDetector creates the detector. resolver may be nil when no
// geolocation database is configured; travel checks then rely on the
// coordinates already on the events.
func NewEvasionDetector(resolver geo.Resolver) *EvasionDetector {
	return &EvasionDetector{
		config:   DefaultEvasionConfig(),
		enabled:  true,
		resolver: resolver,
	}
}

// Type returns the detector type.
func (d *EvasionDetector) Type() DetectorType { return DetectorEvasion }

// Configure updates the detector configuration.
func (d *EvasionDetector) Configure(config json.RawMessage) error {
	var cfg EvasionConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid evasion config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	return nil
}

// Enabled returns whether the detector is active.
func (d *EvasionDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *EvasionDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check evaluates the evasion signals against the fingerprint's window.
func (d *EvasionDetector) Check(_ context.Context, input *Input) (*Result, error) {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	result := &Result{Detector: DetectorEvasion, Details: make(map[string]any)}
	addSignal := func(name string, score float64, severity int) {
		result.Signals = append(result.Signals, name)
		if score > result.Score {
			result.Score = score
		}
		if severity > result.Severity {
			result.Severity = severity
		}
	}

	if speed, distance, ok := d.travelCheck(input, cfg); ok {
		addSignal("impossible_travel", 8.5, 5)
		result.Details["required_speed_kmh"] = speed
		result.Details["distance_km"] = distance
	}

	if count := d.uniqueIPs(input); count >= cfg.MaxUniqueIPs {
		score := 6.0 + 0.5*float64(count-cfg.MaxUniqueIPs)
		if score > 8.0 {
			score = 8.0
		}
		addSignal("ip_rotation", score, 4)
		result.Details["unique_ips"] = count
	}

	if count := d.vpnEgresses(input); count >= cfg.VPNRotationThreshold {
		addSignal("vpn_relay_hopping", 6.5, 4)
		result.Details["vpn_egresses"] = count
	}

	if browsers, oses := d.deviceChurn(input); browsers > 1 || oses > 1 {
		addSignal("device_identity_churn", 5.5, 3)
		result.Details["distinct_browsers"] = browsers
		result.Details["distinct_os"] = oses
	}

	if input.Event.Device.PrivacyHardened && input.Event.PayloadBool("spoofed_headers") {
		addSignal("environment_spoofing", 6.0, 3)
	}

	result.Score = clampScore(result.Score)
	result.Triggered = result.Score > 0
	return result, nil
}

// travelCheck compares the event's location against the most recent
// located prior event. Returns the required speed, the distance and
// whether the transition is implausible.
func (d *EvasionDetector) travelCheck(input *Input, cfg EvasionConfig) (float64, float64, bool) {
	lat, lon, ok := d.locate(input.Event)
	if !ok {
		return 0, 0, false
	}

	for i := range input.History {
		prev := &input.History[i]
		if prev.IPAddress == input.Event.IPAddress {
			continue
		}
		plat, plon, located := d.locate(prev)
		if !located {
			continue
		}

		delta := input.Event.Timestamp.Sub(prev.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		minutes := delta.Minutes()
		if minutes < float64(cfg.MinTimeDeltaMinutes) {
			return 0, 0, false
		}

		distance := geo.HaversineKm(lat, lon, plat, plon)
		if distance < cfg.MinDistanceKm {
			return 0, 0, false
		}
		speed := geo.RequiredSpeedKmh(distance, minutes/60)
		return speed, distance, speed > cfg.MaxSpeedKmh
	}
	return 0, 0, false
}

// locate returns an event's coordinates, resolving through the geo
// database when the event itself carries none.
func (d *EvasionDetector) locate(event *models.Event) (float64, float64, bool) {
	if event.HasLocation() {
		return event.Latitude, event.Longitude, true
	}
	if d.resolver == nil {
		return 0, 0, false
	}
	loc, ok, err := d.resolver.Resolve(event.IPAddress)
	if err != nil || !ok {
		return 0, 0, false
	}
	return loc.Latitude, loc.Longitude, true
}

func (d *EvasionDetector) uniqueIPs(input *Input) int {
	ips := map[string]bool{input.Event.IPAddress: true}
	for _, evt := range input.History {
		ips[evt.IPAddress] = true
	}
	return len(ips)
}

func (d *EvasionDetector) vpnEgresses(input *Input) int {
	ips := make(map[string]bool)
	if input.Event.Network.VPN {
		ips[input.Event.IPAddress] = true
	}
	for _, evt := range input.History {
		if evt.Network.VPN {
			ips[evt.IPAddress] = true
		}
	}
	return len(ips)
}

func (d *EvasionDetector) deviceChurn(input *Input) (int, int) {
	browsers := make(map[string]bool)
	oses := make(map[string]bool)
	record := func(dev models.DeviceInfo) {
		if dev.Browser != "" {
			browsers[dev.Browser] = true
		}
		if dev.OS != "" {
			oses[dev.OS] = true
		}
	}
	record(input.Event.Device)
	for _, evt := range input.History {
		record(evt.Device)
	}
	return len(browsers), len(oses)
}
