// Package session resolves an authenticated identity into its user row,
// current account membership and account. Auth state changes arrive in
// bursts, so resolution is debounced and every notification carries a
// generation number; only the newest generation is allowed to publish.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/identity"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
	"github.com/taskdeck/taskdeck/pkg/idx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

// State is the resolver's lifecycle position.
type State string

const (
	StateUnresolved State = "unresolved"
	StateResolving  State = "resolving"
	StateGuest      State = "resolved-guest"
	StateUser       State = "resolved-user"
)

// DefaultDebounce is how long the resolver waits for the auth state to
// settle before resolving. Matches the burst window of the identity
// provider's notifications.
const DefaultDebounce = 50 * time.Millisecond

// Info is one published resolution. Membership and Account are nil for
// guests; they are always set together for resolved users.
type Info struct {
	State      State
	User       *domain.User
	Membership *domain.AccountMembership
	Account    *domain.Account
}

// Role is a convenience accessor, empty for guests.
func (i Info) Role() domain.Role {
	if i.Membership == nil {
		return ""
	}
	return i.Membership.Role
}

// Resolver drives session resolution off the identity provider's state
// change stream.
type Resolver struct {
	store    store.Store
	log      *slog.Logger
	debounce time.Duration

	gen atomic.Uint64

	mu      sync.Mutex
	current Info
	subs    []chan Info
}

// NewResolver builds a resolver. debounce <= 0 selects the default.
func NewResolver(st store.Store, log *slog.Logger, debounce time.Duration) *Resolver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Resolver{
		store:    st,
		log:      log,
		debounce: debounce,
		current:  Info{State: StateUnresolved},
	}
}

// Current returns the last published resolution. StateUnresolved and
// StateResolving mean "still loading"; StateGuest is a definitive
// signed-out answer.
func (r *Resolver) Current() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Subscribe registers a listener for published resolutions. The
// returned func unsubscribes.
func (r *Resolver) Subscribe() (<-chan Info, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Info, 8)
	r.subs = append(r.subs, ch)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, sub := range r.subs {
				if sub == ch {
					r.subs = append(r.subs[:i], r.subs[i+1:]...)
					close(sub)
					return
				}
			}
		})
	}
	return ch, unsubscribe
}

// Run consumes auth state changes until ctx is done. Call it on its own
// goroutine.
func (r *Resolver) Run(ctx context.Context, changes <-chan identity.StateChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case sc, ok := <-changes:
			if !ok {
				return
			}
			r.Notify(ctx, sc)
		}
	}
}

// Notify feeds one auth state change into the resolver. Each call takes
// a fresh generation; the debounce sleep lets a rapid burst collapse to
// its final notification.
func (r *Resolver) Notify(ctx context.Context, sc identity.StateChange) {
	gen := r.gen.Add(1)

	r.setState(Info{State: StateResolving})

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.debounce):
		}
		if gen != r.gen.Load() {
			return // superseded while waiting
		}
		r.resolve(ctx, gen, sc.Session)
	}()
}

// resolve loads or bootstraps the user's rows and publishes unless the
// generation went stale along the way.
func (r *Resolver) resolve(ctx context.Context, gen uint64, sess *identity.Session) {
	log := slogx.FromContext(ctx)
	if r.log != nil {
		log = r.log
	}

	if sess == nil {
		r.publish(gen, Info{State: StateGuest})
		return
	}

	info, touchID, err := r.Lookup(ctx, *sess)
	if err != nil {
		log.Error("session resolution failed", "user_id", sess.UserID, "err", err)
		return
	}

	if !r.publish(gen, info) {
		return
	}

	// Bump last_accessed_at off the hot path; losing the bump only
	// affects which account is considered current next time.
	go func() {
		if err := r.store.Memberships().TouchMembership(context.WithoutCancel(ctx), touchID); err != nil {
			log.Warn("membership touch failed", "membership_id", touchID, "err", err)
		}
	}()
}

// Lookup resolves a session into Info without publishing, creating the
// user, first account and admin membership when they do not exist yet.
// Bootstrap runs in one transaction so a crash cannot leave a user
// without a membership. The returned id is the membership to touch.
func (r *Resolver) Lookup(ctx context.Context, sess identity.Session) (Info, string, error) {
	var (
		user       domain.User
		membership domain.AccountMembership
		account    domain.Account
	)

	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		var err error

		// 1. User row, created from session metadata on first resolution.
		user, err = tx.Users().GetUserByID(ctx, sess.UserID)
		if errors.Is(err, store.ErrNotFound) {
			user = domain.User{
				ID:        sess.UserID,
				CreatedAt: time.Now(),
				Name:      domain.DisplayNameFor(sess.Name, sess.Email),
				Email:     sess.Email,
			}
			err = tx.Users().CreateUser(ctx, user)
		}
		if err != nil {
			return err
		}

		// 2. Current membership, bootstrapping account + admin membership
		// when the user has none.
		membership, err = tx.Memberships().GetMostRecentMembershipForUser(ctx, user.ID)
		if errors.Is(err, store.ErrNotFound) {
			now := time.Now()
			account = domain.Account{
				ID:        idx.New().String(),
				CreatedAt: now,
				Name:      domain.AccountNameFor(sess.AccountName, sess.Email),
			}
			if err = tx.Accounts().CreateAccount(ctx, account); err != nil {
				return err
			}
			membership = domain.AccountMembership{
				ID:             idx.New().String(),
				CreatedAt:      now,
				LastAccessedAt: now,
				UserID:         user.ID,
				AccountID:      account.ID,
				Role:           domain.RoleAdmin,
			}
			return tx.Memberships().CreateMembership(ctx, membership)
		}
		if err != nil {
			return err
		}

		// 3. The membership's account.
		account, err = tx.Accounts().GetAccountByID(ctx, membership.AccountID)
		return err
	})
	if err != nil {
		return Info{}, "", err
	}

	return Info{
		State:      StateUser,
		User:       &user,
		Membership: &membership,
		Account:    &account,
	}, membership.ID, nil
}

// SwitchAccount makes accountID the current account for the resolved
// user. A missing membership is a silent no-op.
func (r *Resolver) SwitchAccount(ctx context.Context, accountID string) error {
	cur := r.Current()
	if cur.State != StateUser || cur.User == nil {
		return nil
	}

	m, err := r.store.Memberships().GetMembership(ctx, cur.User.ID, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.store.Memberships().TouchMembership(ctx, m.ID); err != nil {
		return err
	}

	// Re-resolve immediately under a fresh generation so a concurrent
	// auth change still wins.
	gen := r.gen.Add(1)

	account, err := r.store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	m, err = r.store.Memberships().GetMembership(ctx, cur.User.ID, accountID)
	if err != nil {
		return err
	}

	r.publish(gen, Info{
		State:      StateUser,
		User:       cur.User,
		Membership: &m,
		Account:    &account,
	})
	return nil
}

// publish installs info as current and fans it out, unless a newer
// generation exists. Reports whether the publish happened.
func (r *Resolver) publish(gen uint64, info Info) bool {
	if gen != r.gen.Load() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the lock so two finishing generations cannot
	// interleave.
	if gen != r.gen.Load() {
		return false
	}

	r.current = info
	for _, ch := range r.subs {
		select {
		case ch <- info:
		default:
		}
	}
	return true
}

func (r *Resolver) setState(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = info
}
