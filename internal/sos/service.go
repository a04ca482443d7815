package sos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LeventeLantos/sos-dispatch/internal/cache"
	"github.com/LeventeLantos/sos-dispatch/internal/metrics"
	"github.com/LeventeLantos/sos-dispatch/internal/model"
	"github.com/LeventeLantos/sos-dispatch/internal/notify"
	"github.com/LeventeLantos/sos-dispatch/internal/repo"
)

type Contacts interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	TrustedContacts(ctx context.Context, userID string) ([]model.Contact, error)
}

type Notifier interface {
	AddSOSAlert(ctx context.Context, job notify.SOSAlert) (string, error)
	AddSOSResolved(ctx context.Context, job notify.SOSResolved) (string, error)
}

// Service drives the alert lifecycle. Every write happens in one
// transaction; notification jobs are queued only after it commits.
type Service struct {
	store     repo.AlertStore
	contacts  Contacts
	notifier  Notifier
	locations cache.LocationCache
	now       func() time.Time
	log       *zap.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLocationCache(c cache.LocationCache) Option { return func(s *Service) { s.locations = c } }
func WithClock(now func() time.Time) Option          { return func(s *Service) { s.now = now } }
func WithLogger(l *zap.Logger) Option                { return func(s *Service) { s.log = l } }
func WithMetrics(m *metrics.Metrics) Option          { return func(s *Service) { s.metrics = m } }

func NewService(store repo.AlertStore, contacts Contacts, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		contacts: contacts,
		notifier: notifier,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func storeErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func newSample(alertID string, in LocationInput, at time.Time) *model.LocationSample {
	return &model.LocationSample{
		ID:        uuid.Must(uuid.NewV7()).String(),
		AlertID:   alertID,
		Longitude: in.Longitude,
		Latitude:  in.Latitude,
		Accuracy:  in.Accuracy,
		Speed:     in.Speed,
		Heading:   in.Heading,
		CreatedAt: at,
	}
}

// CreateAlert opens a new active alert with its first location and queues
// the SOS fan-out. On ErrQueueEnqueue the returned alert is still valid.
func (s *Service) CreateAlert(ctx context.Context, userID string, in CreateAlertInput) (*model.Alert, error) {
	if err := in.Location.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	alert := &model.Alert{
		ID:          uuid.NewString(),
		UserID:      userID,
		Status:      model.AlertActive,
		Description: in.Description,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sample := newSample(alert.ID, in.Location, now)

	err := s.store.InTx(ctx, func(tx repo.AlertStore) error {
		_, err := tx.ActiveAlert(ctx, userID, false)
		if err == nil {
			return ErrAlreadyActive
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		if err := tx.CreateAlert(ctx, alert); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrAlreadyActive
			}
			return err
		}
		return tx.AddLocation(ctx, sample)
	})
	if err != nil {
		return nil, err
	}

	alert.Locations = []model.LocationSample{*sample}
	s.metrics.AlertCreated()
	s.log.Info("sos alert created", zap.String("alert_id", alert.ID), zap.String("user_id", userID))
	s.cacheLast(ctx, sample)

	if err := s.enqueueAlert(ctx, alert, sample); err != nil {
		return alert, err
	}
	return alert, nil
}

func (s *Service) enqueueAlert(ctx context.Context, alert *model.Alert, sample *model.LocationSample) error {
	name, contacts, err := s.audience(ctx, alert.UserID)
	if err != nil {
		return s.enqueueFailed(alert.ID, err)
	}
	_, err = s.notifier.AddSOSAlert(ctx, notify.SOSAlert{
		AlertID:  alert.ID,
		UserID:   alert.UserID,
		UserName: name,
		Contacts: contacts,
		Location: notify.SnapshotOf(sample),
	})
	if err != nil {
		return s.enqueueFailed(alert.ID, err)
	}
	return nil
}

func (s *Service) enqueueResolved(ctx context.Context, alert *model.Alert) error {
	name, contacts, err := s.audience(ctx, alert.UserID)
	if err != nil {
		return s.enqueueFailed(alert.ID, err)
	}
	_, err = s.notifier.AddSOSResolved(ctx, notify.SOSResolved{
		AlertID:          alert.ID,
		UserID:           alert.UserID,
		UserName:         name,
		ResolutionReason: string(*alert.ResolutionReason),
		Contacts:         contacts,
	})
	if err != nil {
		return s.enqueueFailed(alert.ID, err)
	}
	return nil
}

func (s *Service) audience(ctx context.Context, userID string) (string, []notify.Recipient, error) {
	name, err := s.contacts.DisplayName(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	contacts, err := s.contacts.TrustedContacts(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	return name, notify.RecipientsFrom(contacts), nil
}

func (s *Service) enqueueFailed(alertID string, cause error) error {
	s.log.Error("notification job not queued", zap.String("alert_id", alertID), zap.Error(cause))
	return errors.Wrapf(ErrQueueEnqueue, "alert %s: %v", alertID, cause)
}

func (s *Service) cacheLast(ctx context.Context, sample *model.LocationSample) {
	if s.locations == nil {
		return
	}
	if err := s.locations.StoreLast(ctx, *sample); err != nil {
		s.log.Warn("cache last location", zap.String("alert_id", sample.AlertID), zap.Error(err))
	}
}

// UpdateLocation appends a sample to an active alert. It never notifies.
func (s *Service) UpdateLocation(ctx context.Context, userID, alertID string, in LocationInput) (*model.LocationSample, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sample := newSample(alertID, in, s.now().UTC())
	err := s.store.InTx(ctx, func(tx repo.AlertStore) error {
		alert, err := tx.LockAlert(ctx, userID, alertID)
		if err != nil {
			return storeErr(err)
		}
		if !alert.IsActive() {
			return ErrInvalidState
		}
		return tx.AddLocation(ctx, sample)
	})
	if err != nil {
		return nil, err
	}

	s.cacheLast(ctx, sample)
	return sample, nil
}

// ResolveAlert closes an active alert and stores any ratings with it.
// Ratings that reference an unknown contact are kept without the reference.
func (s *Service) ResolveAlert(ctx context.Context, userID, alertID string, in ResolveInput) (*model.Alert, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var alert *model.Alert
	err := s.store.InTx(ctx, func(tx repo.AlertStore) error {
		var err error
		alert, err = tx.LockAlert(ctx, userID, alertID)
		if err != nil {
			return storeErr(err)
		}
		if !alert.IsActive() {
			return ErrInvalidState
		}

		now := s.now().UTC()
		reason := in.Reason
		alert.Status = model.AlertResolved
		alert.ResolvedAt = &now
		alert.ResolutionReason = &reason
		if err := tx.SaveAlert(ctx, alert); err != nil {
			return err
		}

		for _, r := range in.Ratings {
			rating := &model.Rating{
				ID:        uuid.NewString(),
				AlertID:   alert.ID,
				Rating:    r.Rating,
				Comment:   r.Comment,
				CreatedAt: now,
			}
			if r.ContactID != nil {
				ok, err := tx.OwnerHasContact(ctx, userID, *r.ContactID)
				if err != nil {
					return err
				}
				if ok {
					id := *r.ContactID
					rating.TrustedContactID = &id
				}
			}
			if err := tx.CreateRating(ctx, rating); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AlertResolved(string(in.Reason))
	s.log.Info("sos alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("reason", string(in.Reason)),
		zap.Int("ratings", len(in.Ratings)),
	)

	if err := s.enqueueResolved(ctx, alert); err != nil {
		return alert, err
	}
	return alert, nil
}

// ActiveAlert returns the user's active alert with its locations, newest
// first, or nil when there is none.
func (s *Service) ActiveAlert(ctx context.Context, userID string) (*model.Alert, error) {
	alert, err := s.store.ActiveAlert(ctx, userID, true)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return alert, err
}

func (s *Service) Alert(ctx context.Context, userID, alertID string) (*model.Alert, error) {
	alert, err := s.store.FindAlert(ctx, userID, alertID)
	if err != nil {
		return nil, storeErr(err)
	}
	return alert, nil
}

// Locations lists an alert's samples newest first.
func (s *Service) Locations(ctx context.Context, userID, alertID string) ([]model.LocationSample, error) {
	if _, err := s.Alert(ctx, userID, alertID); err != nil {
		return nil, err
	}
	return s.store.Locations(ctx, alertID)
}

// LastLocation returns the alert's most recent sample, from cache when
// possible.
func (s *Service) LastLocation(ctx context.Context, userID, alertID string) (*model.LocationSample, error) {
	if _, err := s.Alert(ctx, userID, alertID); err != nil {
		return nil, err
	}

	if s.locations != nil {
		cached, err := s.locations.Last(ctx, alertID)
		if err != nil {
			s.log.Warn("read cached location", zap.String("alert_id", alertID), zap.Error(err))
		}
		if cached != nil {
			return cached, nil
		}
	}

	sample, err := s.store.LastLocation(ctx, alertID)
	if err != nil {
		return nil, storeErr(err)
	}
	return sample, nil
}
