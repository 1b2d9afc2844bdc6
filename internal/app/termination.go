package app

import "adaptive-testing-service/internal/domain"

// shouldStop evaluates the stop rules after a recorded response. Pool
// exhaustion is handled at selection time and explicit end/abandon at the
// transport edge; the remaining rules, in order:
//
//  1. the administered-item ceiling was reached (hard ceiling, both modes);
//  2. the standard error dropped to the precision threshold after the
//     minimum item count (adaptive only — a zero threshold disables it, and
//     the minimum guards against stopping on a lucky early streak).
func shouldStop(session domain.Session) bool {
	answered := len(session.AdministeredIDs)
	if answered >= session.Settings.MaxItems {
		return true
	}
	if session.Mode == domain.ModeAdaptive &&
		session.Settings.SEThreshold > 0 &&
		session.StandardError <= session.Settings.SEThreshold &&
		answered >= session.Settings.MinItems {
		return true
	}
	return false
}
