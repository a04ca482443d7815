package history

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
	"github.com/LeventeLantos/sos-dispatch/internal/repo"
)

type Role string

const (
	RoleOwner   Role = "owner"
	RoleContact Role = "contact"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Entry struct {
	model.Alert
	Role Role `json:"role"`
}

type Page struct {
	Alerts []Entry `json:"alerts"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}

// Aggregator merges the alerts a user raised with the alerts they were
// notified about as someone's trusted contact.
type Aggregator struct {
	store repo.HistoryStore
}

func NewAggregator(store repo.HistoryStore) *Aggregator {
	return &Aggregator{store: store}
}

// UserHistory returns one page of the merged history, newest first. An alert
// the user both owns and was notified about is listed once, as owner.
func (a *Aggregator) UserHistory(ctx context.Context, userID string, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	owned, err := a.store.OwnedAlerts(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "owned alerts")
	}
	notified, err := a.store.NotifiedAlerts(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "notified alerts")
	}

	seen := make(map[string]struct{}, len(owned)+len(notified))
	merged := make([]Entry, 0, len(owned)+len(notified))
	for _, al := range owned {
		seen[al.ID] = struct{}{}
		merged = append(merged, Entry{Alert: al, Role: RoleOwner})
	}
	for _, al := range notified {
		if _, dup := seen[al.ID]; dup {
			continue
		}
		seen[al.ID] = struct{}{}
		merged = append(merged, Entry{Alert: al, Role: RoleContact})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID > merged[j].ID
	})

	out := &Page{Alerts: []Entry{}, Total: len(merged), Page: page, Limit: limit}
	start := (page - 1) * limit
	if start >= len(merged) {
		return out, nil
	}
	end := start + limit
	if end > len(merged) {
		end = len(merged)
	}
	out.Alerts = merged[start:end]
	return out, nil
}
