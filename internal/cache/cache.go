package cache

import (
	"context"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
)

// LocationCache holds the most recent sample per alert. A miss is (nil, nil).
type LocationCache interface {
	StoreLast(ctx context.Context, sample model.LocationSample) error
	Last(ctx context.Context, alertID string) (*model.LocationSample, error)
}
