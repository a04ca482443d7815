package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LeventeLantos/sos-dispatch/internal/gateway"
	"github.com/LeventeLantos/sos-dispatch/internal/metrics"
	"github.com/LeventeLantos/sos-dispatch/internal/model"
	"github.com/LeventeLantos/sos-dispatch/internal/repo"
)

type SMSSender interface {
	SendSMS(ctx context.Context, phoneNumber, message string) (string, error)
}

type PushSender interface {
	SendPush(ctx context.Context, msg gateway.PushMessage) (string, error)
}

type EmailSender interface {
	SendEmail(ctx context.Context, e gateway.Email) error
}

type Accounts interface {
	AccountByID(ctx context.Context, userID string) (*model.Account, error)
	AccountByEmail(ctx context.Context, email string) (*model.Account, bool, error)
}

type Gateways struct {
	SMS   SMSSender
	Push  PushSender
	Email EmailSender
}

// Dispatcher delivers notification jobs through the channel gateways. For
// fan-out jobs every contact and channel is attempted independently and the
// outcome is written to a notification record; those failures are logged
// and never fail the job.
type Dispatcher struct {
	records   repo.NotificationRepository
	accounts  Accounts
	gw        Gateways
	templates *gateway.Templates
	log       *zap.Logger
	metrics   *metrics.Metrics
}

var _ Handler = (*Dispatcher)(nil)

func NewDispatcher(
	records repo.NotificationRepository,
	accounts Accounts,
	gw Gateways,
	templates *gateway.Templates,
	log *zap.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	if templates == nil {
		templates = gateway.NewTemplates("")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		records:   records,
		accounts:  accounts,
		gw:        gw,
		templates: templates,
		log:       log,
		metrics:   m,
	}
}

func nameOrDefault(name string) string {
	if name == "" {
		return "Your contact"
	}
	return name
}

// contactMessage is what one fan-out event says on every channel.
type contactMessage struct {
	event       model.NotificationEvent
	alertID     string
	smsText     string
	pushTitle   string
	pushBody    string
	pushData    map[string]string
	subject     string
	html        string
	coordinates *LocationSnapshot
}

func (d *Dispatcher) HandleSOSAlert(ctx context.Context, job SOSAlert) error {
	name := nameOrDefault(job.UserName)
	d.log.Info("processing sos alert", zap.String("alert_id", job.AlertID), zap.Int("contacts", len(job.Contacts)))

	msg := contactMessage{
		event:       model.EventAlertCreated,
		alertID:     job.AlertID,
		smsText:     fmt.Sprintf("%s triggered an SOS alert.", name),
		pushTitle:   "New SOS alert",
		pushBody:    fmt.Sprintf("%s triggered an SOS alert.", name),
		pushData:    map[string]string{"alertId": job.AlertID},
		subject:     fmt.Sprintf("SOS alert from %s", name),
		coordinates: job.Location,
	}

	view := gateway.AlertEmail{AlertID: job.AlertID, UserName: name}
	if loc := job.Location; loc != nil {
		mapURL := d.templates.MapURL(loc.Latitude, loc.Longitude)
		msg.smsText += " Last known position: " + mapURL
		msg.pushData["latitude"] = strconv.FormatFloat(loc.Latitude, 'f', 6, 64)
		msg.pushData["longitude"] = strconv.FormatFloat(loc.Longitude, 'f', 6, 64)
		view.Latitude = loc.Latitude
		view.Longitude = loc.Longitude
		view.MapURL = mapURL
		if loc.Accuracy != nil {
			view.Accuracy = *loc.Accuracy
		}
	}

	html, err := d.templates.Render(gateway.TemplateSOSAlert, view)
	if err != nil {
		return err
	}
	msg.html = html

	d.fanOut(ctx, job.Contacts, msg)
	return nil
}

func (d *Dispatcher) HandleSOSResolved(ctx context.Context, job SOSResolved) error {
	name := nameOrDefault(job.UserName)
	d.log.Info("processing sos resolution", zap.String("alert_id", job.AlertID), zap.Int("contacts", len(job.Contacts)))

	html, err := d.templates.Render(gateway.TemplateSOSResolved, gateway.ResolvedEmail{
		AlertID:  job.AlertID,
		UserName: name,
		Reason:   job.ResolutionReason,
	})
	if err != nil {
		return err
	}

	d.fanOut(ctx, job.Contacts, contactMessage{
		event:     model.EventAlertResolved,
		alertID:   job.AlertID,
		smsText:   fmt.Sprintf("%s resolved their SOS alert.", name),
		pushTitle: "SOS alert resolved",
		pushBody:  fmt.Sprintf("%s resolved their SOS alert.", name),
		pushData:  map[string]string{"alertId": job.AlertID, "resolutionReason": job.ResolutionReason},
		subject:   fmt.Sprintf("%s resolved their SOS alert", name),
		html:      html,
	})
	return nil
}

func (d *Dispatcher) fanOut(ctx context.Context, contacts []Recipient, msg contactMessage) {
	for _, rcpt := range contacts {
		if ctx.Err() != nil {
			return
		}
		d.deliverToContact(ctx, rcpt, msg)
	}
}

// deliverToContact tries email, SMS and push in that order. A failure on one
// channel does not stop the others.
func (d *Dispatcher) deliverToContact(ctx context.Context, rcpt Recipient, msg contactMessage) {
	prefs := rcpt.Preferences

	if prefs.Email && rcpt.Email != "" {
		d.attempt(ctx, msg, rcpt, model.ChannelEmail, &model.DeliveryMetadata{Email: rcpt.Email},
			func(ctx context.Context) (string, error) {
				return "", d.gw.Email.SendEmail(ctx, gateway.Email{To: rcpt.Email, Subject: msg.subject, HTML: msg.html})
			})
	}

	if prefs.SMS && rcpt.PhoneNumber != "" {
		d.attempt(ctx, msg, rcpt, model.ChannelSMS, &model.DeliveryMetadata{PhoneNumber: rcpt.PhoneNumber},
			func(ctx context.Context) (string, error) {
				return d.gw.SMS.SendSMS(ctx, rcpt.PhoneNumber, msg.smsText)
			})
	}

	if prefs.Push && !rcpt.Registered {
		d.log.Debug("push skipped, contact has no account",
			zap.String("alert_id", msg.alertID),
			zap.String("contact_id", rcpt.ContactID),
		)
		return
	}
	if prefs.Push {
		acc, ok, err := d.accounts.AccountByEmail(ctx, rcpt.Email)
		switch {
		case err != nil:
			d.attempt(ctx, msg, rcpt, model.ChannelPush, &model.DeliveryMetadata{Email: rcpt.Email},
				func(context.Context) (string, error) {
					return "", errors.Wrap(err, "resolve push recipient")
				})
		case !ok:
			d.log.Debug("push skipped, contact has no account",
				zap.String("alert_id", msg.alertID),
				zap.String("contact_id", rcpt.ContactID),
			)
		default:
			d.attempt(ctx, msg, rcpt, model.ChannelPush, &model.DeliveryMetadata{PushUserID: acc.ID},
				func(ctx context.Context) (string, error) {
					return d.gw.Push.SendPush(ctx, gateway.PushMessage{
						Token:  deref(acc.PushToken),
						UserID: acc.ID,
						Title:  msg.pushTitle,
						Body:   msg.pushBody,
						Data:   msg.pushData,
					})
				})
		}
	}
}

func (d *Dispatcher) attempt(
	ctx context.Context,
	msg contactMessage,
	rcpt Recipient,
	channel model.Channel,
	meta *model.DeliveryMetadata,
	send func(context.Context) (string, error),
) {
	if msg.coordinates != nil {
		meta.Latitude = msg.coordinates.Latitude
		meta.Longitude = msg.coordinates.Longitude
	}
	log := d.log.With(
		zap.String("alert_id", msg.alertID),
		zap.String("contact_id", rcpt.ContactID),
		zap.String("channel", string(channel)),
		zap.String("event", string(msg.event)),
	)

	rec := &model.NotificationRecord{
		AlertID:     msg.alertID,
		RecipientID: rcpt.ContactID,
		Channel:     channel,
		Event:       msg.event,
		Metadata:    meta,
	}
	proceed, err := d.records.Begin(ctx, rec)
	if err != nil {
		log.Error("notification record not written, delivery skipped", zap.Error(err))
		d.metrics.Delivery(string(channel), "error")
		return
	}
	if !proceed {
		log.Debug("already delivered")
		d.metrics.Delivery(string(channel), "duplicate")
		return
	}

	remoteID, err := send(ctx)
	if err != nil {
		log.Error("delivery failed", zap.Error(err))
		d.metrics.Delivery(string(channel), string(model.DeliveryFailed))
		if mErr := d.records.MarkFailed(ctx, rec.ID, err.Error()); mErr != nil {
			log.Error("mark failed", zap.Error(mErr))
		}
		return
	}

	meta.RemoteMessageID = remoteID
	if err := d.records.MarkSent(ctx, rec.ID, meta); err != nil {
		log.Error("mark sent", zap.Error(err))
	}
	d.metrics.Delivery(string(channel), string(model.DeliverySent))
	log.Info("delivered")
}

func (d *Dispatcher) HandlePush(ctx context.Context, job Push) error {
	acc, err := d.accounts.AccountByID(ctx, job.UserID)
	if err != nil {
		return errors.Wrapf(err, "push recipient %s", job.UserID)
	}
	_, err = d.gw.Push.SendPush(ctx, gateway.PushMessage{
		Token:  deref(acc.PushToken),
		UserID: acc.ID,
		Title:  job.Title,
		Body:   job.Body,
		Data:   job.Data,
	})
	return err
}

func (d *Dispatcher) HandleSMS(ctx context.Context, job SMS) error {
	if job.PhoneNumber == "" {
		return errors.New("sms job without phone number")
	}
	_, err := d.gw.SMS.SendSMS(ctx, job.PhoneNumber, job.Message)
	return err
}

func (d *Dispatcher) HandleEmail(ctx context.Context, job Email) error {
	html := job.HTML
	if job.Template != "" {
		rendered, err := d.templates.Render(job.Template, job.Context)
		if err != nil {
			return err
		}
		html = rendered
	}
	return d.gw.Email.SendEmail(ctx, gateway.Email{To: job.To, Subject: job.Subject, HTML: html})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
