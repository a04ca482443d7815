package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
)

// NotificationRepository keeps per-recipient delivery bookkeeping. It is
// written only by the notification worker.
type NotificationRepository interface {
	// Begin moves the record for (alert, recipient, channel, event) to
	// pending, creating it if needed. It reports false when the record was
	// already sent, in which case the delivery must not be repeated.
	Begin(ctx context.Context, rec *model.NotificationRecord) (bool, error)
	MarkSent(ctx context.Context, id string, meta *model.DeliveryMetadata) error
	MarkFailed(ctx context.Context, id string, reason string) error
	ListForAlert(ctx context.Context, alertID string) ([]model.NotificationRecord, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

var _ NotificationRepository = (*GormNotificationRepo)(nil)

func NewNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Begin(ctx context.Context, rec *model.NotificationRecord) (bool, error) {
	proceed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.NotificationRecord
		err := tx.Where(
			"alert_id = ? AND recipient_id = ? AND channel = ? AND event = ?",
			rec.AlertID, rec.RecipientID, rec.Channel, rec.Event,
		).Take(&existing).Error

		switch {
		case err == nil:
			if existing.Status == model.DeliverySent {
				*rec = existing
				return nil
			}
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			rec.Status = model.DeliveryPending
			rec.Error = nil
			proceed = true
			return tx.Model(&existing).
				Select("status", "error", "metadata").
				Updates(&model.NotificationRecord{Status: model.DeliveryPending, Metadata: rec.Metadata}).Error

		case errors.Is(err, gorm.ErrRecordNotFound):
			if rec.ID == "" {
				rec.ID = uuid.NewString()
			}
			rec.Status = model.DeliveryPending
			proceed = true
			return tx.Create(rec).Error
		}
		return err
	})

	err = translate(err)
	if errors.Is(err, ErrDuplicate) {
		// A concurrent attempt created the same record first.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return proceed, nil
}

func (r *GormNotificationRepo) MarkSent(ctx context.Context, id string, meta *model.DeliveryMetadata) error {
	return r.update(ctx, id, &model.NotificationRecord{Status: model.DeliverySent, Metadata: meta}, "status", "error", "metadata")
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.update(ctx, id, &model.NotificationRecord{Status: model.DeliveryFailed, Error: &reason}, "status", "error")
}

func (r *GormNotificationRepo) update(ctx context.Context, id string, values *model.NotificationRecord, cols ...string) error {
	res := r.db.WithContext(ctx).
		Model(&model.NotificationRecord{}).
		Where("id = ?", id).
		Select(cols).
		Updates(values)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) ListForAlert(ctx context.Context, alertID string) ([]model.NotificationRecord, error) {
	var out []model.NotificationRecord
	err := r.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, translate(err)
}
