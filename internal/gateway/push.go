package gateway

import (
	"context"
	"errors"
	"net/http"
)

var ErrNoPushToken = errors.New("recipient has no push token")

type PushMessage struct {
	Token  string            `json:"token"`
	UserID string            `json:"userId"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// PushWebhook relays push notifications to a device-messaging bridge.
type PushWebhook struct {
	hook webhook
}

func NewPushWebhook(url string) *PushWebhook {
	return &PushWebhook{hook: newWebhook(url)}
}

func (c *PushWebhook) SendPush(ctx context.Context, msg PushMessage) (string, error) {
	if msg.Token == "" {
		return "", ErrNoPushToken
	}
	resp, err := c.hook.post(ctx, msg, http.StatusOK, http.StatusCreated, http.StatusAccepted)
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}
