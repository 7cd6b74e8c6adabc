// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package services adapts CaseGuard's long-running components to the
// suture.Service interface. Each wrapper delegates to the component's
// context-aware run loop and contributes a stable name for supervisor
// logging. Interfaces rather than concrete types keep this package free
// of dependencies on the components it wraps.
package services
