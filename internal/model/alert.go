package model

import (
	"time"

	"gorm.io/gorm"
)

type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertResolved  AlertStatus = "resolved"
	AlertCancelled AlertStatus = "cancelled"
)

type ResolutionReason string

const (
	SituationResolved ResolutionReason = "situation_resolved"
	FalseAlarm        ResolutionReason = "false_alarm"
)

func (r ResolutionReason) Valid() bool {
	return r == SituationResolved || r == FalseAlarm
}

// Alert is one distress episode. A user owns at most one active alert at a time.
type Alert struct {
	ID               string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           string            `gorm:"type:varchar(36);not null;index" json:"userId"`
	Status           AlertStatus       `gorm:"type:varchar(16);not null;default:active" json:"status"`
	Description      *string           `json:"description,omitempty"`
	StartedAt        time.Time         `gorm:"not null" json:"startedAt"`
	ResolvedAt       *time.Time        `json:"resolvedAt,omitempty"`
	ResolutionReason *ResolutionReason `gorm:"type:varchar(32)" json:"resolutionReason,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	DeletedAt        gorm.DeletedAt    `gorm:"index" json:"-"`

	Locations []LocationSample `gorm:"foreignKey:AlertID" json:"locations,omitempty"`
}

func (Alert) TableName() string { return "sos_alerts" }

func (a *Alert) IsActive() bool { return a.Status == AlertActive }

// LocationSample is an append-only reading for an alert. IDs are UUIDv7 so
// that (created_at, id) is a stable insertion order.
type LocationSample struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	AlertID   string    `gorm:"type:varchar(36);not null;index:idx_alert_locations_alert_created,priority:1" json:"alertId"`
	Longitude float64   `gorm:"not null" json:"longitude"`
	Latitude  float64   `gorm:"not null" json:"latitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_alert_locations_alert_created,priority:2" json:"createdAt"`
}

func (LocationSample) TableName() string { return "alert_locations" }

// Rating is feedback recorded when an alert is resolved. Never updated.
type Rating struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	AlertID          string    `gorm:"type:varchar(36);not null;index" json:"alertId"`
	TrustedContactID *string   `gorm:"type:varchar(36)" json:"trustedContactId,omitempty"`
	Rating           int       `gorm:"not null" json:"rating"`
	Comment          *string   `json:"comment,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (Rating) TableName() string { return "alert_ratings" }
