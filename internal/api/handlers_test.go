package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/LeventeLantos/sos-dispatch/internal/contacts"
	"github.com/LeventeLantos/sos-dispatch/internal/gateway"
	"github.com/LeventeLantos/sos-dispatch/internal/history"
	"github.com/LeventeLantos/sos-dispatch/internal/metrics"
	"github.com/LeventeLantos/sos-dispatch/internal/model"
	"github.com/LeventeLantos/sos-dispatch/internal/notify"
	"github.com/LeventeLantos/sos-dispatch/internal/queue"
	"github.com/LeventeLantos/sos-dispatch/internal/repo"
	"github.com/LeventeLantos/sos-dispatch/internal/scheduler"
	"github.com/LeventeLantos/sos-dispatch/internal/sos"
)

type fakeAlerts struct {
	gotUser  string
	gotAlert string
	gotIn    any

	alert  *model.Alert
	sample *model.LocationSample
	items  []model.LocationSample
	err    error
}

var _ AlertService = (*fakeAlerts)(nil)

func (f *fakeAlerts) CreateAlert(ctx context.Context, userID string, in sos.CreateAlertInput) (*model.Alert, error) {
	f.gotUser, f.gotIn = userID, in
	return f.alert, f.err
}

func (f *fakeAlerts) UpdateLocation(ctx context.Context, userID, alertID string, in sos.LocationInput) (*model.LocationSample, error) {
	f.gotUser, f.gotAlert, f.gotIn = userID, alertID, in
	return f.sample, f.err
}

func (f *fakeAlerts) ResolveAlert(ctx context.Context, userID, alertID string, in sos.ResolveInput) (*model.Alert, error) {
	f.gotUser, f.gotAlert, f.gotIn = userID, alertID, in
	return f.alert, f.err
}

func (f *fakeAlerts) ActiveAlert(ctx context.Context, userID string) (*model.Alert, error) {
	f.gotUser = userID
	return f.alert, f.err
}

func (f *fakeAlerts) Alert(ctx context.Context, userID, alertID string) (*model.Alert, error) {
	f.gotUser, f.gotAlert = userID, alertID
	return f.alert, f.err
}

func (f *fakeAlerts) Locations(ctx context.Context, userID, alertID string) ([]model.LocationSample, error) {
	f.gotUser, f.gotAlert = userID, alertID
	return f.items, f.err
}

func (f *fakeAlerts) LastLocation(ctx context.Context, userID, alertID string) (*model.LocationSample, error) {
	f.gotUser, f.gotAlert = userID, alertID
	return f.sample, f.err
}

type fakeHistory struct {
	gotPage, gotLimit int
	page              *history.Page
}

func (f *fakeHistory) UserHistory(ctx context.Context, userID string, page, limit int) (*history.Page, error) {
	f.gotPage, f.gotLimit = page, limit
	return f.page, nil
}

func newTestServer(t *testing.T, alerts AlertService, hist HistoryReader, opts RouterOptions) http.Handler {
	t.Helper()
	return Router(NewHandler(alerts, hist, nil, nil, nil), opts)
}

func do(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	mux := newTestServer(t, &fakeAlerts{}, &fakeHistory{}, RouterOptions{})

	rr := do(t, mux, http.MethodGet, "/v1/health", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected application/json, got %q", ct)
	}
	if ok, _ := decodeJSON(t, rr)["ok"].(bool); !ok {
		t.Fatalf("expected ok=true")
	}
}

func TestAlerts_RequireUserHeader(t *testing.T) {
	mux := newTestServer(t, &fakeAlerts{}, &fakeHistory{}, RouterOptions{})

	rr := do(t, mux, http.MethodGet, "/v1/alerts/active", "", "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateAlert_Created(t *testing.T) {
	alerts := &fakeAlerts{alert: &model.Alert{ID: "a1", UserID: "u1", Status: model.AlertActive}}
	mux := newTestServer(t, alerts, &fakeHistory{}, RouterOptions{})

	rr := do(t, mux, http.MethodPost, "/v1/alerts", "u1",
		`{"description":"help","location":{"latitude":52.5,"longitude":13.4}}`)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "u1", alerts.gotUser)

	in := alerts.gotIn.(sos.CreateAlertInput)
	assert.Equal(t, 52.5, in.Location.Latitude)
	assert.Equal(t, 13.4, in.Location.Longitude)
	require.NotNil(t, in.Description)
	assert.Equal(t, "help", *in.Description)
	assert.Equal(t, "a1", decodeJSON(t, rr)["id"])
}

func TestCreateAlert_InvalidJSON(t *testing.T) {
	mux := newTestServer(t, &fakeAlerts{}, &fakeHistory{}, RouterOptions{})

	rr := do(t, mux, http.MethodPost, "/v1/alerts", "u1", `{`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", sos.ErrNotFound, http.StatusNotFound},
		{"already active", sos.ErrAlreadyActive, http.StatusConflict},
		{"invalid state", sos.ErrInvalidState, http.StatusBadRequest},
		{"invalid input", errors.Wrap(sos.ErrInvalidInput, "latitude"), http.StatusBadRequest},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestServer(t, &fakeAlerts{err: tc.err}, &fakeHistory{}, RouterOptions{})

			rr := do(t, mux, http.MethodGet, "/v1/alerts/a1", "u1", "")

			assert.Equal(t, tc.status, rr.Code)
			body := decodeJSON(t, rr)
			assert.NotEmpty(t, body["error"])
			assert.NotContains(t, body, "alert")
		})
	}
}

func TestCreateAlert_EnqueueFailureStillReturnsAlert(t *testing.T) {
	alerts := &fakeAlerts{
		alert: &model.Alert{ID: "a1", UserID: "u1", Status: model.AlertActive},
		err:   errors.Wrap(sos.ErrQueueEnqueue, "redis down"),
	}
	mux := newTestServer(t, alerts, &fakeHistory{}, RouterOptions{})

	rr := do(t, mux, http.MethodPost, "/v1/alerts", "u1", `{"location":{"latitude":1,"longitude":2}}`)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decodeJSON(t, rr)
	alert, ok := body["alert"].(map[string]any)
	require.True(t, ok, "expected alert in body: %v", body)
	assert.Equal(t, "a1", alert["id"])
}

func TestAlertRoutes_PassPathAndBody(t *testing.T) {
	sample := &model.LocationSample{ID: "s1", AlertID: "a1", Latitude: 1, Longitude: 2}
	alerts := &fakeAlerts{
		alert:  &model.Alert{ID: "a1", Status: model.AlertResolved},
		sample: sample,
		items:  []model.LocationSample{*sample},
	}
	mux := newTestServer(t, alerts, &fakeHistory{}, RouterOptions{})

	rr := do(t, mux, http.MethodPost, "/v1/alerts/a1/locations", "u1", `{"latitude":1,"longitude":2,"speed":3}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "a1", alerts.gotAlert)
	in := alerts.gotIn.(sos.LocationInput)
	require.NotNil(t, in.Speed)
	assert.Equal(t, 3.0, *in.Speed)

	rr = do(t, mux, http.MethodGet, "/v1/alerts/a2/locations", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a2", alerts.gotAlert)
	assert.Len(t, decodeJSON(t, rr)["items"], 1)

	rr = do(t, mux, http.MethodGet, "/v1/alerts/a3/locations/last", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a3", alerts.gotAlert)

	rr = do(t, mux, http.MethodPost, "/v1/alerts/a4/resolve", "u2",
		`{"resolutionReason":"false_alarm","ratings":[{"rating":5}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a4", alerts.gotAlert)
	assert.Equal(t, "u2", alerts.gotUser)
	res := alerts.gotIn.(sos.ResolveInput)
	assert.Equal(t, model.FalseAlarm, res.Reason)
	require.Len(t, res.Ratings, 1)
}

func TestActiveAlert_NoneIsNull(t *testing.T) {
	mux := newTestServer(t, &fakeAlerts{}, &fakeHistory{}, RouterOptions{})

	rr := do(t, mux, http.MethodGet, "/v1/alerts/active", "u1", "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeJSON(t, rr)
	assert.Contains(t, body, "alert")
	assert.Nil(t, body["alert"])
}

func TestHistory_PassesPagination(t *testing.T) {
	hist := &fakeHistory{page: &history.Page{Page: 2, Limit: 5}}
	mux := newTestServer(t, &fakeAlerts{}, hist, RouterOptions{})

	rr := do(t, mux, http.MethodGet, "/v1/alerts/history?page=2&limit=5", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, hist.gotPage)
	assert.Equal(t, 5, hist.gotLimit)

	rr = do(t, mux, http.MethodGet, "/v1/alerts/history?page=abc", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, hist.gotPage)
	assert.Equal(t, history.DefaultLimit, hist.gotLimit)
}

func TestRateLimit_PerUser(t *testing.T) {
	rate, err := limiter.NewRateFromFormatted("2-M")
	require.NoError(t, err)
	l := limiter.New(memory.NewStore(), rate)

	mux := newTestServer(t, &fakeAlerts{}, &fakeHistory{}, RouterOptions{Limiter: l})

	for i := 0; i < 2; i++ {
		rr := do(t, mux, http.MethodGet, "/v1/alerts/active", "u1", "")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(t, mux, http.MethodGet, "/v1/alerts/active", "u1", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = do(t, mux, http.MethodGet, "/v1/alerts/active", "u2", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint_RecordsRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	mux := newTestServer(t, &fakeAlerts{alert: &model.Alert{ID: "a1"}}, &fakeHistory{}, RouterOptions{Metrics: m, Gatherer: reg})

	do(t, mux, http.MethodGet, "/v1/alerts/a1", "u1", "")

	rr := do(t, mux, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `route="/v1/alerts/{id}"`)
}

type fakeQueue struct {
	counts    queue.Counts
	paused    bool
	gotGrace  time.Duration
	gotLimit  int
	gotState  queue.State
	failed    []queue.Job
	retried   int
	drained   int
	countsErr error
}

func (f *fakeQueue) Counts(ctx context.Context) (queue.Counts, error) {
	c := f.counts
	c.Paused = f.paused
	return c, f.countsErr
}
func (f *fakeQueue) Pause(ctx context.Context) error  { f.paused = true; return nil }
func (f *fakeQueue) Resume(ctx context.Context) error { f.paused = false; return nil }
func (f *fakeQueue) Drain(ctx context.Context) (int, error) {
	return f.drained, nil
}
func (f *fakeQueue) Clean(ctx context.Context, grace time.Duration, limit int, state queue.State) (int, error) {
	f.gotGrace, f.gotLimit, f.gotState = grace, limit, state
	return 3, nil
}
func (f *fakeQueue) Failed(ctx context.Context, limit int) ([]queue.Job, error) {
	f.gotLimit = limit
	return f.failed, nil
}
func (f *fakeQueue) RetryFailed(ctx context.Context) (int, error) { return f.retried, nil }

func newAdminServer(t *testing.T, q QueueAdmin) (*scheduler.Scheduler, http.Handler) {
	t.Helper()

	// Long interval so only the immediate tick happens.
	s, err := scheduler.New("maintenance", time.Hour, func(context.Context) {}, nil)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	admin := NewAdminHandler(q, s, 24*time.Hour, nil)
	return s, Router(NewHandler(&fakeAlerts{}, &fakeHistory{}, admin, nil, nil), RouterOptions{})
}

func TestAdmin_QueuePauseResumeStats(t *testing.T) {
	q := &fakeQueue{counts: queue.Counts{Waiting: 4, Failed: 1}}
	s, mux := newAdminServer(t, q)
	defer s.Stop()

	rr := do(t, mux, http.MethodPost, "/v1/admin/queue/pause", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, mux, http.MethodGet, "/v1/admin/queue/stats", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeJSON(t, rr)
	assert.Equal(t, true, body["paused"])
	assert.Equal(t, float64(4), body["waiting"])
	assert.Equal(t, float64(1), body["failed"])

	rr = do(t, mux, http.MethodPost, "/v1/admin/queue/resume", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, q.paused)
}

func TestAdmin_QueueStatsError(t *testing.T) {
	s, mux := newAdminServer(t, &fakeQueue{countsErr: errors.New("redis down")})
	defer s.Stop()

	rr := do(t, mux, http.MethodGet, "/v1/admin/queue/stats", "", "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAdmin_CleanDefaultsAndOverrides(t *testing.T) {
	q := &fakeQueue{}
	s, mux := newAdminServer(t, q)
	defer s.Stop()

	rr := do(t, mux, http.MethodPost, "/v1/admin/queue/clean", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 24*time.Hour, q.gotGrace)
	assert.Equal(t, defaultCleanLimit, q.gotLimit)
	assert.Equal(t, queue.StateCompleted, q.gotState)
	assert.Equal(t, float64(3), decodeJSON(t, rr)["removed"])

	rr = do(t, mux, http.MethodPost, "/v1/admin/queue/clean?grace=1h&limit=10&state=failed", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Hour, q.gotGrace)
	assert.Equal(t, 10, q.gotLimit)
	assert.Equal(t, queue.StateFailed, q.gotState)

	rr = do(t, mux, http.MethodPost, "/v1/admin/queue/clean?state=active", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, mux, http.MethodPost, "/v1/admin/queue/clean?grace=soon", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdmin_FailedRetryDrain(t *testing.T) {
	q := &fakeQueue{failed: []queue.Job{{ID: "j1", Kind: "sms", LastError: "boom"}}, retried: 1, drained: 7}
	s, mux := newAdminServer(t, q)
	defer s.Stop()

	rr := do(t, mux, http.MethodGet, "/v1/admin/queue/failed", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, defaultFailedLimit, q.gotLimit)
	assert.Len(t, decodeJSON(t, rr)["items"], 1)

	rr = do(t, mux, http.MethodPost, "/v1/admin/queue/retry-failed", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decodeJSON(t, rr)["requeued"])

	rr = do(t, mux, http.MethodPost, "/v1/admin/queue/drain", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(7), decodeJSON(t, rr)["removed"])
}

func TestAdmin_MaintenanceStartStopStatus(t *testing.T) {
	s, mux := newAdminServer(t, &fakeQueue{})
	defer s.Stop()

	rr := do(t, mux, http.MethodGet, "/v1/admin/maintenance/status", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	if running, _ := decodeJSON(t, rr)["running"].(bool); running {
		t.Fatalf("expected running=false initially")
	}

	rr = do(t, mux, http.MethodPost, "/v1/admin/maintenance/start", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	if running, _ := decodeJSON(t, rr)["running"].(bool); !running {
		t.Fatalf("expected running=true after start")
	}
	if !s.IsRunning() {
		t.Fatalf("expected scheduler to be running after start endpoint")
	}

	rr = do(t, mux, http.MethodPost, "/v1/admin/maintenance/stop", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	if running, _ := decodeJSON(t, rr)["running"].(bool); running {
		t.Fatalf("expected running=false after stop")
	}
}

func TestAdmin_MethodNotAllowed(t *testing.T) {
	s, mux := newAdminServer(t, &fakeQueue{})
	defer s.Stop()

	rr := do(t, mux, http.MethodGet, "/v1/admin/maintenance/start", "", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

type fakeProducer struct {
	pushes []notify.Push
	emails []notify.Email
	err    error
}

func (f *fakeProducer) AddPush(ctx context.Context, job notify.Push) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.pushes = append(f.pushes, job)
	return "push-1", nil
}

func (f *fakeProducer) AddEmail(ctx context.Context, job notify.Email) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.emails = append(f.emails, job)
	return "email-1", nil
}

type fakeUsers struct {
	accounts map[string]*model.Account
	tokens   map[string]string
	added    []contacts.NewContact
	addErr   error
}

func (f *fakeUsers) AccountByID(ctx context.Context, userID string) (*model.Account, error) {
	acc, ok := f.accounts[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return acc, nil
}

func (f *fakeUsers) SetPushToken(ctx context.Context, userID, token string) error {
	if _, ok := f.accounts[userID]; !ok {
		return repo.ErrNotFound
	}
	f.tokens[userID] = token
	return nil
}

func (f *fakeUsers) AddTrustedContact(ctx context.Context, userID string, in contacts.NewContact) (*model.TrustedContact, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.added = append(f.added, in)
	return &model.TrustedContact{ID: "tc1", UserID: userID, Name: in.Name, Email: in.Email, PhoneNumber: in.PhoneNumber}, nil
}

func newNotificationsServer(t *testing.T, p NotificationProducer, users UserDirectory) http.Handler {
	t.Helper()
	return Router(NewHandler(&fakeAlerts{}, &fakeHistory{}, nil, NewNotificationsHandler(p, users, nil), nil), RouterOptions{})
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		accounts: map[string]*model.Account{
			"u1": {ID: "u1", Email: "ana@example.com", FirstName: "Ana", LastName: "Pop"},
		},
		tokens: map[string]string{},
	}
}

func TestNotifications_RequireUserHeader(t *testing.T) {
	mux := newNotificationsServer(t, &fakeProducer{}, newFakeUsers())

	for _, path := range []string{"/fcm-token", "/test-push", "/test-email", "/trusted-contacts"} {
		rr := do(t, mux, http.MethodPost, "/v1/notifications"+path, "", "{}")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestNotifications_UpdatePushToken(t *testing.T) {
	users := newFakeUsers()
	mux := newNotificationsServer(t, &fakeProducer{}, users)

	rr := do(t, mux, http.MethodPost, "/v1/notifications/fcm-token", "u1", `{"fcmToken":"tok-1"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "tok-1", users.tokens["u1"])

	rr = do(t, mux, http.MethodPost, "/v1/notifications/fcm-token", "u1", `{"fcmToken":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, mux, http.MethodPost, "/v1/notifications/fcm-token", "ghost", `{"fcmToken":"tok-2"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNotifications_TestPushEnqueuesForCaller(t *testing.T) {
	p := &fakeProducer{}
	mux := newNotificationsServer(t, p, newFakeUsers())

	rr := do(t, mux, http.MethodPost, "/v1/notifications/test-push", "u1", "")

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "push-1", decodeJSON(t, rr)["jobId"])
	require.Len(t, p.pushes, 1)
	assert.Equal(t, "u1", p.pushes[0].UserID)
	assert.Equal(t, "Test Notification", p.pushes[0].Title)
}

func TestNotifications_TestPushEnqueueFailure(t *testing.T) {
	mux := newNotificationsServer(t, &fakeProducer{err: errors.New("redis down")}, newFakeUsers())

	rr := do(t, mux, http.MethodPost, "/v1/notifications/test-push", "u1", "")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNotifications_TestEmailUsesTemplate(t *testing.T) {
	p := &fakeProducer{}
	mux := newNotificationsServer(t, p, newFakeUsers())

	rr := do(t, mux, http.MethodPost, "/v1/notifications/test-email", "u1", "")

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Len(t, p.emails, 1)
	got := p.emails[0]
	assert.Equal(t, "ana@example.com", got.To)
	assert.Equal(t, gateway.TemplateTest, got.Template)
	assert.Equal(t, "Ana Pop", got.Context["Name"])

	rr = do(t, mux, http.MethodPost, "/v1/notifications/test-email", "ghost", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Len(t, p.emails, 1)
}

func TestNotifications_AddTrustedContact(t *testing.T) {
	users := newFakeUsers()
	mux := newNotificationsServer(t, &fakeProducer{}, users)

	rr := do(t, mux, http.MethodPost, "/v1/notifications/trusted-contacts", "u1",
		`{"name":"Mara","email":"mara@example.com","phoneNumber":"+40700000000","notificationPreferences":{"email":true,"sms":true,"push":false}}`)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "tc1", decodeJSON(t, rr)["id"])
	require.Len(t, users.added, 1)
	in := users.added[0]
	assert.Equal(t, "Mara", in.Name)
	require.NotNil(t, in.PhoneNumber)
	assert.Equal(t, "+40700000000", *in.PhoneNumber)
	require.NotNil(t, in.Preferences)
	assert.True(t, in.Preferences.SMS)
	assert.False(t, in.Preferences.Push)
}

func TestNotifications_AddTrustedContactInvalid(t *testing.T) {
	users := newFakeUsers()
	users.addErr = errors.Wrap(contacts.ErrInvalidContact, "email is malformed")
	mux := newNotificationsServer(t, &fakeProducer{}, users)

	rr := do(t, mux, http.MethodPost, "/v1/notifications/trusted-contacts", "u1", `{"name":"Mara","email":"x@"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, mux, http.MethodPost, "/v1/notifications/trusted-contacts", "u1", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
