package model

import (
	"time"

	"gorm.io/gorm"
)

type Preferences struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
	Push  bool `json:"push"`
}

// Account is a registered user as seen by the user directory.
type Account struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email       string         `gorm:"not null;uniqueIndex" json:"email"`
	FirstName   string         `gorm:"not null" json:"firstName"`
	LastName    string         `gorm:"not null" json:"lastName"`
	PhoneNumber *string        `json:"phoneNumber,omitempty"`
	PushToken   *string        `gorm:"column:fcm_token" json:"-"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Account) TableName() string { return "users" }

func (a Account) DisplayName() string {
	switch {
	case a.FirstName != "" && a.LastName != "":
		return a.FirstName + " " + a.LastName
	case a.FirstName != "":
		return a.FirstName
	case a.LastName != "":
		return a.LastName
	}
	return a.Email
}

type TrustedContact struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string         `gorm:"type:varchar(36);not null;index" json:"userId"`
	Name        string         `gorm:"not null" json:"name"`
	Email       string         `gorm:"not null;index" json:"email"`
	PhoneNumber *string        `json:"phoneNumber,omitempty"`
	Preferences *Preferences   `gorm:"column:notification_preferences;serializer:json" json:"notificationPreferences,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (TrustedContact) TableName() string { return "trusted_contacts" }

// Contact is a trusted contact resolved for notification: preferences are
// always populated and Registered reports whether an account shares its email.
type Contact struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	PhoneNumber string      `json:"phoneNumber,omitempty"`
	Preferences Preferences `json:"notificationPreferences"`
	Registered  bool        `json:"registered"`
}
