package gateway

import (
	"context"
	"fmt"
	"net/http"
)

// SMSWebhook hands text messages to an HTTP SMS provider that answers
// 202 Accepted with a message id.
type SMSWebhook struct {
	hook webhook
}

func NewSMSWebhook(url string) *SMSWebhook {
	return &SMSWebhook{hook: newWebhook(url)}
}

type smsRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

func (c *SMSWebhook) SendSMS(ctx context.Context, phoneNumber, message string) (string, error) {
	resp, err := c.hook.post(ctx, smsRequest{PhoneNumber: phoneNumber, Message: message}, http.StatusAccepted)
	if err != nil {
		return "", err
	}
	if resp.MessageID == "" {
		return "", fmt.Errorf("missing messageId in response")
	}
	return resp.MessageID, nil
}
