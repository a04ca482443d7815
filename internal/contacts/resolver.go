package contacts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
	"github.com/LeventeLantos/sos-dispatch/internal/repo"
)

// Directory is the read side of the user directory.
type Directory interface {
	FindAccountByID(ctx context.Context, id string) (*model.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	ListTrustedContacts(ctx context.Context, userID string) ([]model.TrustedContact, error)
	CreateTrustedContact(ctx context.Context, c *model.TrustedContact) error
	SetPushToken(ctx context.Context, userID, token string) error
}

// ErrInvalidContact rejects a trusted contact without a name or a usable
// email address.
var ErrInvalidContact = errors.New("invalid trusted contact")

// Resolver answers who a user is, who they trust and whether a contact has
// an account. Positive email lookups are cached; misses are not, so a
// contact who registers is picked up on the next alert.
type Resolver struct {
	dir   Directory
	cache *expirable.LRU[string, model.Account]
	log   *zap.Logger
}

func NewResolver(dir Directory, cacheSize int, ttl time.Duration, log *zap.Logger) *Resolver {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		dir:   dir,
		cache: expirable.NewLRU[string, model.Account](cacheSize, nil, ttl),
		log:   log,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayName returns the user's full name, or the empty string when the
// account is gone.
func (r *Resolver) DisplayName(ctx context.Context, userID string) (string, error) {
	acc, err := r.dir.FindAccountByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "find account")
	}
	return acc.DisplayName(), nil
}

// AccountByID returns repo.ErrNotFound when the account does not exist.
func (r *Resolver) AccountByID(ctx context.Context, userID string) (*model.Account, error) {
	return r.dir.FindAccountByID(ctx, userID)
}

// AccountByEmail reports whether a registered account uses email.
func (r *Resolver) AccountByEmail(ctx context.Context, email string) (*model.Account, bool, error) {
	key := normalizeEmail(email)
	if key == "" {
		return nil, false, nil
	}
	if acc, ok := r.cache.Get(key); ok {
		return &acc, true, nil
	}

	acc, err := r.dir.FindAccountByEmail(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "find account by email")
	}
	r.cache.Add(key, *acc)
	return acc, true, nil
}

// TrustedContacts returns the user's contacts with preferences filled in and
// Registered resolved. A failed registration lookup is logged and treated as
// unregistered.
func (r *Resolver) TrustedContacts(ctx context.Context, userID string) ([]model.Contact, error) {
	rows, err := r.dir.ListTrustedContacts(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list trusted contacts")
	}

	out := make([]model.Contact, 0, len(rows))
	for _, tc := range rows {
		c := model.Contact{
			ID:    tc.ID,
			Name:  tc.Name,
			Email: tc.Email,
		}
		if tc.PhoneNumber != nil {
			c.PhoneNumber = strings.TrimSpace(*tc.PhoneNumber)
		}

		_, registered, err := r.AccountByEmail(ctx, tc.Email)
		if err != nil {
			r.log.Warn("registration lookup failed",
				zap.String("contact_id", tc.ID),
				zap.Error(err),
			)
		}
		c.Registered = registered

		if tc.Preferences != nil {
			c.Preferences = *tc.Preferences
		} else {
			c.Preferences = DefaultPreferences(registered)
		}
		out = append(out, c)
	}
	return out, nil
}

// DefaultPreferences applies when a contact has none stored: email on, SMS
// off, push only when the contact can receive it.
func DefaultPreferences(registered bool) model.Preferences {
	return model.Preferences{Email: true, SMS: false, Push: registered}
}

type NewContact struct {
	Name        string
	Email       string
	PhoneNumber *string
	Preferences *model.Preferences
}

// AddTrustedContact stores a contact for userID, deriving default
// preferences from whether the email belongs to an account.
func (r *Resolver) AddTrustedContact(ctx context.Context, userID string, in NewContact) (*model.TrustedContact, error) {
	email := strings.TrimSpace(in.Email)
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.Wrap(ErrInvalidContact, "name is required")
	}
	if at := strings.Index(email, "@"); at <= 0 || at == len(email)-1 {
		return nil, errors.Wrapf(ErrInvalidContact, "email %q", email)
	}

	prefs := in.Preferences
	if prefs == nil {
		_, registered, err := r.AccountByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		p := DefaultPreferences(registered)
		prefs = &p
	}

	tc := &model.TrustedContact{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        strings.TrimSpace(in.Name),
		Email:       email,
		PhoneNumber: in.PhoneNumber,
		Preferences: prefs,
	}
	if err := r.dir.CreateTrustedContact(ctx, tc); err != nil {
		return nil, errors.Wrap(err, "create trusted contact")
	}
	return tc, nil
}

// SetPushToken records the device token for userID and drops the cached
// account so the next push reads the new token.
func (r *Resolver) SetPushToken(ctx context.Context, userID, token string) error {
	acc, err := r.dir.FindAccountByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := r.dir.SetPushToken(ctx, userID, strings.TrimSpace(token)); err != nil {
		return err
	}
	r.cache.Remove(normalizeEmail(acc.Email))
	return nil
}
