package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LeventeLantos/sos-dispatch/internal/contacts"
	"github.com/LeventeLantos/sos-dispatch/internal/gateway"
	"github.com/LeventeLantos/sos-dispatch/internal/model"
	"github.com/LeventeLantos/sos-dispatch/internal/notify"
	"github.com/LeventeLantos/sos-dispatch/internal/sos"
)

type NotificationProducer interface {
	AddPush(ctx context.Context, job notify.Push) (string, error)
	AddEmail(ctx context.Context, job notify.Email) (string, error)
}

type UserDirectory interface {
	AccountByID(ctx context.Context, userID string) (*model.Account, error)
	SetPushToken(ctx context.Context, userID, token string) error
	AddTrustedContact(ctx context.Context, userID string, in contacts.NewContact) (*model.TrustedContact, error)
}

// NotificationsHandler lets a user register their push device, add trusted
// contacts and send themselves test notifications.
type NotificationsHandler struct {
	producer NotificationProducer
	users    UserDirectory
	log      *zap.Logger
}

func NewNotificationsHandler(p NotificationProducer, users UserDirectory, log *zap.Logger) *NotificationsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationsHandler{producer: p, users: users, log: log}
}

type pushTokenRequest struct {
	Token string `json:"fcmToken"`
}

func (n *NotificationsHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	var in pushTokenRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Token) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "fcmToken is required"})
		return
	}

	if err := n.users.SetPushToken(r.Context(), userID(r), in.Token); err != nil {
		writeError(w, r, n.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "push token updated"})
}

func (n *NotificationsHandler) TestPush(w http.ResponseWriter, r *http.Request) {
	id, err := n.producer.AddPush(r.Context(), notify.Push{
		UserID: userID(r),
		Title:  "Test Notification",
		Body:   "This is a test notification",
	})
	if err != nil {
		writeError(w, r, n.log, errors.Wrap(sos.ErrQueueEnqueue, err.Error()), nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": id})
}

func (n *NotificationsHandler) TestEmail(w http.ResponseWriter, r *http.Request) {
	acc, err := n.users.AccountByID(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, n.log, err, nil)
		return
	}

	id, err := n.producer.AddEmail(r.Context(), notify.Email{
		To:       acc.Email,
		Subject:  "Test Email",
		Template: gateway.TemplateTest,
		Context:  map[string]any{"Name": acc.DisplayName()},
	})
	if err != nil {
		writeError(w, r, n.log, errors.Wrap(sos.ErrQueueEnqueue, err.Error()), nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": id})
}

type trustedContactRequest struct {
	Name        string             `json:"name"`
	Email       string             `json:"email"`
	PhoneNumber *string            `json:"phoneNumber,omitempty"`
	Preferences *model.Preferences `json:"notificationPreferences,omitempty"`
}

func (n *NotificationsHandler) AddTrustedContact(w http.ResponseWriter, r *http.Request) {
	var in trustedContactRequest
	if !decodeBody(w, r, &in) {
		return
	}

	tc, err := n.users.AddTrustedContact(r.Context(), userID(r), contacts.NewContact{
		Name:        in.Name,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Preferences: in.Preferences,
	})
	if err != nil {
		writeError(w, r, n.log, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, tc)
}
