package notify

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/LeventeLantos/sos-dispatch/internal/gateway"
	"github.com/LeventeLantos/sos-dispatch/internal/model"
	"github.com/LeventeLantos/sos-dispatch/internal/repo"
)

type fakeGateways struct {
	mu        sync.Mutex
	emails    []gateway.Email
	sms       []string
	pushes    []gateway.PushMessage
	failEmail map[string]error
	failSMS   error
}

func (f *fakeGateways) SendEmail(_ context.Context, e gateway.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failEmail[e.To]; err != nil {
		return err
	}
	f.emails = append(f.emails, e)
	return nil
}

func (f *fakeGateways) SendSMS(_ context.Context, phone, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSMS != nil {
		return "", f.failSMS
	}
	f.sms = append(f.sms, phone+"|"+message)
	return "sms-" + phone, nil
}

func (f *fakeGateways) SendPush(_ context.Context, msg gateway.PushMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.Token == "" {
		return "", gateway.ErrNoPushToken
	}
	f.pushes = append(f.pushes, msg)
	return "push-" + msg.UserID, nil
}

func (f *fakeGateways) gateways() Gateways {
	return Gateways{SMS: f, Push: f, Email: f}
}

type fakeAccounts struct {
	byEmail map[string]model.Account
	err     error
	lookups []string
}

func (f *fakeAccounts) AccountByID(_ context.Context, id string) (*model.Account, error) {
	for _, a := range f.byEmail {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeAccounts) AccountByEmail(_ context.Context, email string) (*model.Account, bool, error) {
	f.lookups = append(f.lookups, email)
	if f.err != nil {
		return nil, false, f.err
	}
	a, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

var errGatewayDown = errors.New("gateway down")

func strptr(s string) *string { return &s }
