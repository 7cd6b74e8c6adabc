// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"github.com/caseguard/caseguard/internal/models"
)

// Select chooses which dimensions analyze an event. The zero-tolerance
// dimensions and the honeytrap check always run; the rest join when the
// event shape makes them informative. Comprehensive mode, used for
// investigation replay, runs everything.
func Select(event *models.Event, comprehensive bool) map[DetectorType]bool {
	selected := map[DetectorType]bool{
		DetectorCriminal:  true,
		DetectorEvasion:   true,
		DetectorHoneytrap: true,
	}
	if comprehensive {
		selected[DetectorTemporal] = true
		selected[DetectorBehavioral] = true
		selected[DetectorContent] = true
		selected[DetectorNetwork] = true
		selected[DetectorEnvironmental] = true
		selected[DetectorPsychological] = true
		selected[DetectorSession] = true
		return selected
	}

	switch event.Kind {
	case models.EventSearch, models.EventCopy, models.EventDownload,
		models.EventPrint, models.EventScreenshot, models.EventMediaView:
		selected[DetectorContent] = true
		selected[DetectorBehavioral] = true

	case models.EventClick, models.EventScroll, models.EventTabSwitch,
		models.EventFormSubmit:
		selected[DetectorBehavioral] = true

	case models.EventPageView:
		selected[DetectorTemporal] = true
		selected[DetectorPsychological] = true
		selected[DetectorBehavioral] = true

	case models.EventFormFail, models.EventLoginAttempt:
		selected[DetectorNetwork] = true
		selected[DetectorSession] = true

	case models.EventSessionStart, models.EventSessionEnd:
		selected[DetectorSession] = true
		selected[DetectorBehavioral] = true
	}

	// Network and environment flags pull in their dimensions regardless
	// of interaction kind.
	if event.Network.Tor || event.Network.VPN || event.Network.OpenProxy || event.Network.Hosting {
		selected[DetectorNetwork] = true
		selected[DetectorEnvironmental] = true
	}
	if event.Device.FreshProfile || event.Device.VirtualMachine || event.Device.PrivacyHardened {
		selected[DetectorEnvironmental] = true
	}
	if event.SessionID != "" {
		selected[DetectorSession] = true
	}

	return selected
}
