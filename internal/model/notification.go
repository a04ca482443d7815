package model

import "time"

type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// NotificationEvent distinguishes the alert transition a record belongs to,
// so the resolution notice to a contact does not collide with the original
// alert notice on the same channel.
type NotificationEvent string

const (
	EventAlertCreated  NotificationEvent = "alert_created"
	EventAlertResolved NotificationEvent = "alert_resolved"
)

type DeliveryMetadata struct {
	Email           string  `json:"email,omitempty"`
	PhoneNumber     string  `json:"phoneNumber,omitempty"`
	PushUserID      string  `json:"pushUserId,omitempty"`
	RemoteMessageID string  `json:"remoteMessageId,omitempty"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
}

// NotificationRecord is the outcome of one delivery to one recipient over one
// channel. (alert, recipient, channel, event) is unique.
type NotificationRecord struct {
	ID          string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	AlertID     string            `gorm:"type:varchar(36);not null;uniqueIndex:uq_alert_notifications_target,priority:1" json:"alertId"`
	RecipientID string            `gorm:"type:varchar(36);not null;uniqueIndex:uq_alert_notifications_target,priority:2;index" json:"recipientId"`
	Channel     Channel           `gorm:"type:varchar(8);not null;uniqueIndex:uq_alert_notifications_target,priority:3" json:"channel"`
	Event       NotificationEvent `gorm:"type:varchar(32);not null;uniqueIndex:uq_alert_notifications_target,priority:4" json:"event"`
	Status      DeliveryStatus    `gorm:"type:varchar(8);not null;default:pending" json:"status"`
	Error       *string           `json:"error,omitempty"`
	Metadata    *DeliveryMetadata `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func (NotificationRecord) TableName() string { return "alert_notifications" }
