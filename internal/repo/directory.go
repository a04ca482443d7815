package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
)

// GormDirectory reads registered accounts and trusted contacts. Profile
// management lives elsewhere; CreateAccount exists for seeding.
type GormDirectory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) FindAccountByID(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (d *GormDirectory) FindAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	var a model.Account
	err := d.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		Take(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (d *GormDirectory) ListTrustedContacts(ctx context.Context, userID string) ([]model.TrustedContact, error) {
	var out []model.TrustedContact
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, translate(err)
}

func (d *GormDirectory) CreateTrustedContact(ctx context.Context, c *model.TrustedContact) error {
	return translate(d.db.WithContext(ctx).Create(c).Error)
}

// SetPushToken stores the device token push notifications are sent to. An
// empty token clears it.
func (d *GormDirectory) SetPushToken(ctx context.Context, userID, token string) error {
	var value *string
	if token != "" {
		value = &token
	}
	res := d.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", userID).
		Update("fcm_token", value)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *GormDirectory) CreateAccount(ctx context.Context, a *model.Account) error {
	return translate(d.db.WithContext(ctx).Create(a).Error)
}
