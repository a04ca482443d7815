package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
)

// AlertStore is the transactional store for alerts, their location samples
// and their ratings. Lookups that miss return ErrNotFound.
type AlertStore interface {
	// InTx runs fn inside one transaction; any error rolls everything back.
	InTx(ctx context.Context, fn func(tx AlertStore) error) error

	ActiveAlert(ctx context.Context, userID string, withLocations bool) (*model.Alert, error)
	FindAlert(ctx context.Context, userID, alertID string) (*model.Alert, error)
	// LockAlert is FindAlert with a row lock where the engine supports it.
	LockAlert(ctx context.Context, userID, alertID string) (*model.Alert, error)
	CreateAlert(ctx context.Context, a *model.Alert) error
	SaveAlert(ctx context.Context, a *model.Alert) error

	AddLocation(ctx context.Context, s *model.LocationSample) error
	Locations(ctx context.Context, alertID string) ([]model.LocationSample, error)
	LastLocation(ctx context.Context, alertID string) (*model.LocationSample, error)

	CreateRating(ctx context.Context, r *model.Rating) error
	OwnerHasContact(ctx context.Context, userID, contactID string) (bool, error)
}

// HistoryStore feeds the alert history views.
type HistoryStore interface {
	OwnedAlerts(ctx context.Context, userID string) ([]model.Alert, error)
	// NotifiedAlerts returns alerts for which a notification record exists
	// whose recipient is a trusted contact sharing the user's account email.
	NotifiedAlerts(ctx context.Context, userID string) ([]model.Alert, error)
}

type GormAlertStore struct {
	db *gorm.DB
}

var (
	_ AlertStore   = (*GormAlertStore)(nil)
	_ HistoryStore = (*GormAlertStore)(nil)
)

func NewAlertStore(db *gorm.DB) *GormAlertStore {
	return &GormAlertStore{db: db}
}

func (s *GormAlertStore) InTx(ctx context.Context, fn func(tx AlertStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormAlertStore{db: tx})
	})
}

func (s *GormAlertStore) ActiveAlert(ctx context.Context, userID string, withLocations bool) (*model.Alert, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.AlertActive).
		Order("created_at DESC")
	if withLocations {
		q = q.Preload("Locations", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC, id DESC")
		})
	}

	var a model.Alert
	if err := q.Take(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormAlertStore) FindAlert(ctx context.Context, userID, alertID string) (*model.Alert, error) {
	var a model.Alert
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", alertID, userID).
		Take(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormAlertStore) LockAlert(ctx context.Context, userID, alertID string) (*model.Alert, error) {
	q := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", alertID, userID)
	if isPostgres(s.db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var a model.Alert
	if err := q.Take(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormAlertStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	return translate(s.db.WithContext(ctx).Omit("Locations").Create(a).Error)
}

func (s *GormAlertStore) SaveAlert(ctx context.Context, a *model.Alert) error {
	return translate(s.db.WithContext(ctx).Omit("Locations").Save(a).Error)
}

func (s *GormAlertStore) AddLocation(ctx context.Context, sample *model.LocationSample) error {
	return translate(s.db.WithContext(ctx).Create(sample).Error)
}

func (s *GormAlertStore) Locations(ctx context.Context, alertID string) ([]model.LocationSample, error) {
	var out []model.LocationSample
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, translate(err)
}

func (s *GormAlertStore) LastLocation(ctx context.Context, alertID string) (*model.LocationSample, error) {
	var sample model.LocationSample
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("created_at DESC, id DESC").
		Take(&sample).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sample, nil
}

func (s *GormAlertStore) CreateRating(ctx context.Context, r *model.Rating) error {
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *GormAlertStore) OwnerHasContact(ctx context.Context, userID, contactID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.TrustedContact{}).
		Where("id = ? AND user_id = ?", contactID, userID).
		Count(&n).Error
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (s *GormAlertStore) OwnedAlerts(ctx context.Context, userID string) ([]model.Alert, error) {
	var out []model.Alert
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, translate(err)
}

func (s *GormAlertStore) NotifiedAlerts(ctx context.Context, userID string) ([]model.Alert, error) {
	notified := s.db.WithContext(ctx).
		Table("alert_notifications AS n").
		Select("n.alert_id").
		Joins("JOIN trusted_contacts AS tc ON tc.id = n.recipient_id AND tc.deleted_at IS NULL").
		Joins("JOIN users AS u ON LOWER(u.email) = LOWER(tc.email) AND u.deleted_at IS NULL").
		Where("u.id = ?", userID)

	var out []model.Alert
	err := s.db.WithContext(ctx).
		Where("id IN (?)", notified).
		Order("created_at DESC").
		Find(&out).Error
	return out, translate(err)
}
