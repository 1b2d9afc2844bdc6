package app

import (
	"adaptive-testing-service/internal/domain"
	"adaptive-testing-service/internal/irt"
)

// selectNext picks the next item for a session. Adaptive sessions take the
// unadministered item with maximum Fisher information at the current ability
// estimate, tie-broken by lowest item id so selection is deterministic.
// Classical sessions take the first unadministered item in pool order.
// Returns domain.ErrExhausted when no candidates remain.
func selectNext(pool domain.Pool, session domain.Session, theta float64) (domain.Item, error) {
	if session.Mode == domain.ModeClassical {
		for i := range pool.Items {
			if !session.Administered(pool.Items[i].ID) {
				return pool.Items[i], nil
			}
		}
		return domain.Item{}, domain.ErrExhausted
	}

	var (
		best     domain.Item
		bestInfo float64
		found    bool
	)
	for i := range pool.Items {
		item := pool.Items[i]
		if session.Administered(item.ID) {
			continue
		}
		info := irt.Information(item, theta)
		switch {
		case !found, info > bestInfo:
			best, bestInfo, found = item, info, true
		case info == bestInfo && item.ID < best.ID:
			best = item
		}
	}
	if !found {
		return domain.Item{}, domain.ErrExhausted
	}
	return best, nil
}
