// Package identity is the in-process auth provider: it owns credentials,
// issues EdDSA session tokens and publishes auth state changes for the
// session resolver to consume.
package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
	"github.com/taskdeck/taskdeck/pkg/cryptox"
	"github.com/taskdeck/taskdeck/pkg/idx"
	"github.com/taskdeck/taskdeck/pkg/jwtx"
)

var (
	ErrEmailTaken         = errors.New("identity: email already registered")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrInvalidToken       = errors.New("identity: invalid token")
)

// Session is an authenticated identity snapshot carried by a token.
type Session struct {
	Token       string
	UserID      string
	Email       string
	Name        string
	AccountName string
	ExpiresAt   time.Time
}

// Metadata is the free-form sign-up payload. Name seeds the profile,
// AccountName seeds the first account.
type Metadata struct {
	Name        string
	AccountName string
}

// StateEvent tags an auth state change notification.
type StateEvent string

const (
	EventSignedIn       StateEvent = "signed-in"
	EventSignedOut      StateEvent = "signed-out"
	EventTokenRefreshed StateEvent = "token-refreshed"
)

// StateChange is one auth state notification. Session is nil on
// signed-out.
type StateChange struct {
	Event   StateEvent
	Session *Session
}

// Provider issues and verifies sessions against stored credentials.
type Provider struct {
	store    store.Store
	signer   jwtx.Signer
	verifier jwtx.Verifier
	issuer   string
	ttl      time.Duration

	mu   sync.Mutex
	subs []chan StateChange
}

// NewProvider wires the provider. ttl <= 0 falls back to the default
// session lifetime.
func NewProvider(st store.Store, signer jwtx.Signer, verifier jwtx.Verifier, issuer string, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}
	return &Provider{
		store:    st,
		signer:   signer,
		verifier: verifier,
		issuer:   issuer,
		ttl:      ttl,
	}
}

// StateChanges registers a listener for auth state notifications. The
// returned func unsubscribes.
func (p *Provider) StateChanges() (<-chan StateChange, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan StateChange, 8)
	p.subs = append(p.subs, ch)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, sub := range p.subs {
				if sub == ch {
					p.subs = append(p.subs[:i], p.subs[i+1:]...)
					close(sub)
					return
				}
			}
		})
	}
	return ch, unsubscribe
}

func (p *Provider) publish(sc StateChange) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ch := range p.subs {
		select {
		case ch <- sc:
		default:
		}
	}
}

// SignUp registers a new credential and opens a session.
func (p *Provider) SignUp(ctx context.Context, email, password string, meta Metadata) (Session, error) {
	email = domain.NormalizeEmail(email)

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return Session{}, err
	}

	now := time.Now()
	cred := domain.Credential{
		UserID:       idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.store.Credentials().CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, err
	}

	sess, err := p.issue(cred.UserID, email, domain.DisplayNameFor(meta.Name, email),
		domain.AccountNameFor(meta.AccountName, email))
	if err != nil {
		return Session{}, err
	}

	p.publish(StateChange{Event: EventSignedIn, Session: &sess})
	return sess, nil
}

// SignIn verifies a password and opens a session. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Session, error) {
	cred, err := p.store.Credentials().GetCredentialByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	if err := cryptox.VerifyPassword(password, cred.PasswordHash); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	// Carry profile metadata forward when the profile row already exists.
	name := domain.EmailLocalPart(cred.Email)
	if u, err := p.store.Users().GetUserByID(ctx, cred.UserID); err == nil {
		name = u.Name
	}

	sess, err := p.issue(cred.UserID, cred.Email, name, "")
	if err != nil {
		return Session{}, err
	}

	p.publish(StateChange{Event: EventSignedIn, Session: &sess})
	return sess, nil
}

// SignOut invalidates the caller's view of the session. Tokens are
// stateless, so this only drives the state change stream.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	p.publish(StateChange{Event: EventSignedOut})
	return nil
}

// Refresh exchanges a still-valid token for a fresh one with a full
// TTL, carrying the claims forward.
func (p *Provider) Refresh(ctx context.Context, token string) (Session, error) {
	cur, err := p.CurrentUser(ctx, token)
	if err != nil {
		return Session{}, err
	}

	sess, err := p.issue(cur.UserID, cur.Email, cur.Name, cur.AccountName)
	if err != nil {
		return Session{}, err
	}

	p.publish(StateChange{Event: EventTokenRefreshed, Session: &sess})
	return sess, nil
}

// CurrentUser verifies a token and reconstructs its session.
func (p *Provider) CurrentUser(ctx context.Context, token string) (Session, error) {
	claims, err := p.verifier.Verify(token)
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	if err := claims.ValidateExpiry(); err != nil {
		return Session{}, ErrInvalidToken
	}

	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return Session{
		Token:       token,
		UserID:      claims.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
		AccountName: claims.AccountName,
		ExpiresAt:   expires,
	}, nil
}

func (p *Provider) issue(userID, email, name, accountName string) (Session, error) {
	now := time.Now()
	claims := jwtx.NewSessionClaims(userID, p.issuer, email, name, accountName, p.ttl, now)

	token, err := p.signer.Sign(claims)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      userID,
		Email:       email,
		Name:        name,
		AccountName: accountName,
		ExpiresAt:   now.Add(p.ttl),
	}, nil
}
