package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
)

const (
	KindSOSAlert    = "sos-alert"
	KindSOSResolved = "sos-resolved"
	KindPush        = "push-notification"
	KindSMS         = "sms"
	KindEmail       = "email"
)

// Payload is the closed set of job bodies. Each payload routes itself to the
// matching Handler method, so adding a kind means extending Handler.
type Payload interface {
	Kind() string
	dispatch(ctx context.Context, h Handler) error
}

// Handler processes each kind of notification job.
type Handler interface {
	HandleSOSAlert(ctx context.Context, job SOSAlert) error
	HandleSOSResolved(ctx context.Context, job SOSResolved) error
	HandlePush(ctx context.Context, job Push) error
	HandleSMS(ctx context.Context, job SMS) error
	HandleEmail(ctx context.Context, job Email) error
}

type Recipient struct {
	ContactID   string            `json:"contactId"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	PhoneNumber string            `json:"phoneNumber,omitempty"`
	Preferences model.Preferences `json:"notificationPreferences"`
	// Registered is resolved when the job is queued; push is only tried
	// for registered contacts.
	Registered bool `json:"registered"`
}

func RecipientsFrom(contacts []model.Contact) []Recipient {
	out := make([]Recipient, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, Recipient{
			ContactID:   c.ID,
			Name:        c.Name,
			Email:       c.Email,
			PhoneNumber: c.PhoneNumber,
			Preferences: c.Preferences,
			Registered:  c.Registered,
		})
	}
	return out
}

type LocationSnapshot struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}

func SnapshotOf(s *model.LocationSample) *LocationSnapshot {
	if s == nil {
		return nil
	}
	return &LocationSnapshot{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Accuracy:  s.Accuracy,
		Speed:     s.Speed,
		Heading:   s.Heading,
	}
}

type SOSAlert struct {
	AlertID  string            `json:"alertId"`
	UserID   string            `json:"userId"`
	UserName string            `json:"userName"`
	Contacts []Recipient       `json:"contacts"`
	Location *LocationSnapshot `json:"location,omitempty"`
}

type SOSResolved struct {
	AlertID          string      `json:"alertId"`
	UserID           string      `json:"userId"`
	UserName         string      `json:"userName"`
	ResolutionReason string      `json:"resolutionReason"`
	Contacts         []Recipient `json:"contacts"`
}

type Push struct {
	UserID string            `json:"userId"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

type SMS struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// Email carries either a rendered HTML body or a template name and the
// values to render it with.
type Email struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

func (SOSAlert) Kind() string    { return KindSOSAlert }
func (SOSResolved) Kind() string { return KindSOSResolved }
func (Push) Kind() string        { return KindPush }
func (SMS) Kind() string         { return KindSMS }
func (Email) Kind() string       { return KindEmail }

func (j SOSAlert) dispatch(ctx context.Context, h Handler) error { return h.HandleSOSAlert(ctx, j) }
func (j SOSResolved) dispatch(ctx context.Context, h Handler) error {
	return h.HandleSOSResolved(ctx, j)
}
func (j Push) dispatch(ctx context.Context, h Handler) error  { return h.HandlePush(ctx, j) }
func (j SMS) dispatch(ctx context.Context, h Handler) error   { return h.HandleSMS(ctx, j) }
func (j Email) dispatch(ctx context.Context, h Handler) error { return h.HandleEmail(ctx, j) }

// Decode turns a stored job body back into its payload.
func Decode(kind string, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindSOSAlert:
		p = &SOSAlert{}
	case KindSOSResolved:
		p = &SOSResolved{}
	case KindPush:
		p = &Push{}
	case KindSMS:
		p = &SMS{}
	case KindEmail:
		p = &Email{}
	default:
		return nil, fmt.Errorf("unknown job type: %s", kind)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
