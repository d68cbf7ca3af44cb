// Package session holds the client's process-wide record of who is logged in.
//
// A Store owns a single Session value that is either absent or active with a
// user profile. Login and Logout are the only transitions; both are serialized
// per store and mirrored to a local persistent cache so a restarted client
// comes back logged in without contacting remote services.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
	apperrors "github.com/fixdesk/fixdesk/internal/errors"
	"github.com/fixdesk/fixdesk/internal/ports"
	"golang.org/x/sync/semaphore"
)

// CacheKey is the local cache entry holding the last active profile and its
// provider token.
const CacheKey = "userLogin"

// cachedSession is the record stored under CacheKey. Older clients wrote the
// bare profile; decodeCached still accepts that form.
type cachedSession struct {
	Profile domainauth.Profile `json:"profile"`
	Token   *cachedToken       `json:"token,omitempty"`
}

type cachedToken struct {
	ID        string    `json:"id,omitempty"`
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

const (
	defaultRemoteTimeout = 10 * time.Second
	defaultCacheTimeout  = 2 * time.Second
)

// Config tunes timeouts and the concurrency policy of a Store.
type Config struct {
	// RemoteTimeout bounds every identity provider and document store call.
	RemoteTimeout time.Duration
	// CacheTimeout bounds local cache reads and writes.
	CacheTimeout time.Duration
	// RejectConcurrent makes a Login or Logout that arrives while another is in
	// flight fail with a busy error instead of waiting its turn.
	RejectConcurrent bool
}

// Metrics receives transition counters and timings.
type Metrics interface {
	Count(name string, value int64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// StoreOptions groups dependencies for Store.
type StoreOptions struct {
	Identity  ports.IdentityProvider
	Documents ports.DocumentStore
	Cache     ports.LocalCache
	// Limiter is optional; when nil login attempts are not throttled.
	Limiter ports.AttemptLimiter
	// Metrics is optional.
	Metrics Metrics
	Logger  *slog.Logger
	Config  Config
}

// snapshot is the immutable unit swapped on every transition.
type snapshot struct {
	session domainauth.Session
	token   domainauth.Token
}

// Store is the session store. Create one with NewStore and share it; the zero value is not usable.
type Store struct {
	idp     ports.IdentityProvider
	docs    ports.DocumentStore
	cache   ports.LocalCache
	limiter ports.AttemptLimiter
	metrics Metrics
	logger  *slog.Logger
	cfg     Config

	state atomic.Pointer[snapshot]
	gate  *semaphore.Weighted
	// pending holds sessions to announce once the gate is released. Guarded by gate.
	pending []domainauth.Session

	subMu     sync.Mutex
	subs      map[int]func(domainauth.Session)
	nextSubID int
}

// NewStore constructs a Store whose session starts Absent.
func NewStore(opts StoreOptions) *Store {
	cfg := opts.Config
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = defaultRemoteTimeout
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = defaultCacheTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		idp:     opts.Identity,
		docs:    opts.Documents,
		cache:   opts.Cache,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		logger:  logger.With("component", "session_store"),
		cfg:     cfg,
		gate:    semaphore.NewWeighted(1),
		subs:    make(map[int]func(domainauth.Session)),
	}
	s.state.Store(&snapshot{})
	return s
}

// Current returns the session as of now. It never blocks on remote work.
func (s *Store) Current() domainauth.Session {
	return s.state.Load().session
}

// Token returns the identity provider token of the active session. A session
// restored from the local cache carries the token persisted with it, unless
// that token had already expired.
func (s *Store) Token() (domainauth.Token, bool) {
	snap := s.state.Load()
	if !snap.session.IsActive() || snap.token.IsZero() {
		return domainauth.Token{}, false
	}
	return snap.token, true
}

// Subscribe registers fn to be called with the new session after every
// transition. Callbacks run after the transition has released the store, so
// fn may itself call Login, Logout or Refresh. The returned function removes
// the subscription.
func (s *Store) Subscribe(fn func(domainauth.Session)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Initialize seeds the session from the local cache without any remote call.
// A missing, unreadable or corrupt cache entry leaves the session Absent.
func (s *Store) Initialize(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
	defer cancel()

	raw, err := s.cache.Read(cctx, CacheKey)
	if errors.Is(err, ports.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "read cached session", "error", err)
		return nil
	}

	profile, tok, err := decodeCached(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding corrupt cached session", "error", err)
		if delErr := s.cache.Delete(cctx, CacheKey); delErr != nil {
			s.logger.WarnContext(ctx, "delete corrupt cached session", "error", delErr)
		}
		return nil
	}
	if !tok.IsZero() && !tok.ExpiresAt.IsZero() && !time.Now().Before(tok.ExpiresAt) {
		tok = domainauth.Token{}
	}

	s.dispatch(loginAction{profile: profile, token: tok})
	s.logger.DebugContext(ctx, "session restored from cache", "email", profile.Email, "has_token", !tok.IsZero())
	return nil
}

func decodeCached(raw []byte) (domainauth.Profile, domainauth.Token, error) {
	var rec cachedSession
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domainauth.Profile{}, domainauth.Token{}, err
	}
	if rec.Profile.Email == "" {
		var legacy domainauth.Profile
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return domainauth.Profile{}, domainauth.Token{}, err
		}
		if legacy.Email == "" {
			return domainauth.Profile{}, domainauth.Token{}, errors.New("cached session has no email")
		}
		return legacy, domainauth.Token{}, nil
	}

	var tok domainauth.Token
	// A token issued to someone else is never restored.
	if t := rec.Token; t != nil && t.Value != "" && domainauth.NormalizeEmail(t.Email) == domainauth.NormalizeEmail(rec.Profile.Email) {
		tok = domainauth.Token{ID: t.ID, Subject: t.Subject, Email: t.Email, Value: t.Value, ExpiresAt: t.ExpiresAt}
	}
	return rec.Profile, tok, nil
}

// Login authenticates the credentials, loads the profile and activates the
// session. On any failure the session is left as it was.
func (s *Store) Login(ctx context.Context, email, password string) error {
	start := time.Now()
	err := s.login(ctx, email, password)
	s.observe("session.login", err, time.Since(start))
	return err
}

func (s *Store) login(ctx context.Context, email, password string) error {
	creds := domainauth.Credentials{Email: domainauth.NormalizeEmail(email), Password: password}
	if err := domainauth.ValidateLogin(creds); err != nil {
		return err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.allow(ctx, creds.Email); err != nil {
		return err
	}

	tok, err := s.signIn(ctx, creds)
	if err != nil {
		return err
	}

	profile, err := s.fetchProfile(ctx, creds.Email)
	if err != nil {
		s.signOut(ctx, tok)
		return err
	}
	if profile.Banned {
		s.signOut(ctx, tok)
		s.logger.InfoContext(ctx, "login refused for banned account", "email", creds.Email)
		return apperrors.Banned(creds.Email)
	}

	prev := s.state.Load()
	s.dispatch(loginAction{profile: profile, token: tok})
	if !prev.token.IsZero() && prev.token.Value != tok.Value {
		s.signOut(ctx, prev.token)
	}
	s.persist(ctx, profile, tok)

	s.logger.InfoContext(ctx, "login succeeded", "email", profile.Email, "role", string(profile.Role))
	return nil
}

// Logout ends the provider session, clears the session and removes the cached
// record. Logging out an absent session is a no-op that still clears the cache.
// Provider and cache failures are logged; the local session always ends.
func (s *Store) Logout(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	s.logoutLocked(ctx)
	s.observe("session.logout", nil, time.Since(start))
	return nil
}

// Refresh re-reads the active user's profile. A profile that is now banned or
// gone ends the session and returns the matching reason; otherwise the cached
// copy is replaced with the fresh one.
func (s *Store) Refresh(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	snap := s.state.Load()
	if !snap.session.IsActive() {
		return apperrors.NotAuthenticated("no active session")
	}
	email := snap.session.Email()

	profile, err := s.fetchProfile(ctx, email)
	switch {
	case apperrors.IsAccountMissing(err):
		s.logoutLocked(ctx)
		return err
	case err != nil:
		return err
	case profile.Banned:
		s.logger.InfoContext(ctx, "active account was banned", "email", email)
		s.logoutLocked(ctx)
		return apperrors.Banned(email)
	}

	s.dispatch(loginAction{profile: profile, token: snap.token})
	s.persist(ctx, profile, snap.token)
	return nil
}

func (s *Store) logoutLocked(ctx context.Context) {
	prev := s.state.Load()
	if !prev.token.IsZero() {
		s.signOut(ctx, prev.token)
	}
	s.dispatch(logoutAction{})

	cctx, cancel := s.cacheContext(ctx)
	defer cancel()
	if err := s.cache.Delete(cctx, CacheKey); err != nil {
		s.logger.WarnContext(ctx, "delete cached session", "error", err)
	}
	if prev.session.IsActive() {
		s.logger.InfoContext(ctx, "logged out", "email", prev.session.Email())
	}
}

func (s *Store) observe(metric string, err error, took time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.GetCode(err))
		if outcome == "" {
			outcome = string(apperrors.ErrCodeInternal)
		}
	}
	tags := map[string]string{"outcome": outcome}
	s.metrics.Count(metric, 1, tags)
	s.metrics.Timing(metric+".duration", took, tags)
}

// acquire serializes transitions. The returned func releases the slot.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	if s.cfg.RejectConcurrent {
		if !s.gate.TryAcquire(1) {
			return nil, apperrors.New(apperrors.ErrCodeBusy, "another login or logout is in progress")
		}
	} else if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeCanceled, "waiting for session store")
	}
	return s.release, nil
}

// release frees the transition slot and then announces the transitions made
// while it was held.
func (s *Store) release() {
	pending := s.pending
	s.pending = nil
	s.gate.Release(1)
	for _, sess := range pending {
		s.notify(sess)
	}
}

func (s *Store) allow(ctx context.Context, email string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, email)
	if err != nil {
		// A broken limiter must not lock everyone out.
		s.logger.WarnContext(ctx, "login attempt limiter failed", "error", err)
		return nil
	}
	if !ok {
		return apperrors.New(apperrors.ErrCodeTooManyAttempts, "too many login attempts; try again later")
	}
	return nil
}

func (s *Store) signIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Token, error) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	tok, err := s.idp.SignIn(rctx, creds)
	if err != nil {
		return domainauth.Token{}, ClassifyRemote(ctx, err, "sign in")
	}
	if tok.Email == "" {
		tok.Email = creds.Email
	}
	return tok, nil
}

// signOut is best effort: a failed provider sign-out is logged, never surfaced.
func (s *Store) signOut(ctx context.Context, tok domainauth.Token) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RemoteTimeout)
	defer cancel()

	if err := s.idp.SignOut(rctx, tok); err != nil {
		s.logger.WarnContext(ctx, "identity provider sign out failed", "email", tok.Email, "error", err)
	}
}

func (s *Store) fetchProfile(ctx context.Context, email string) (domainauth.Profile, error) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	doc, err := s.docs.Get(rctx, ports.CollectionUsers, email)
	if errors.Is(err, ports.ErrNotFound) {
		return domainauth.Profile{}, apperrors.AccountMissing(email)
	}
	if err != nil {
		return domainauth.Profile{}, ClassifyRemote(ctx, err, "load profile")
	}

	profile, err := domainauth.ProfileFromDocument(doc.Data)
	if err != nil {
		return domainauth.Profile{}, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "profile for %s is malformed", email)
	}
	if profile.Email == "" {
		profile.Email = email
	}
	return profile, nil
}

// persist mirrors the active profile and its provider token to the local cache.
// The in-memory transition has already happened; a failed write is retried by
// the next one.
func (s *Store) persist(ctx context.Context, profile domainauth.Profile, tok domainauth.Token) {
	rec := cachedSession{Profile: profile}
	if !tok.IsZero() {
		rec.Token = &cachedToken{ID: tok.ID, Subject: tok.Subject, Email: tok.Email, Value: tok.Value, ExpiresAt: tok.ExpiresAt}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode cached session", "error", err)
		return
	}

	cctx, cancel := s.cacheContext(ctx)
	defer cancel()
	if err := s.cache.Write(cctx, CacheKey, raw); err != nil {
		s.logger.WarnContext(ctx, "write cached session", "email", profile.Email, "error", err)
	}
}

// cacheContext detaches from caller cancellation so an abandoned request still
// leaves the cache consistent with memory.
func (s *Store) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CacheTimeout)
}

func (s *Store) dispatch(a action) {
	next := reduce(*s.state.Load(), a)
	s.state.Store(&next)
	s.pending = append(s.pending, next.session)
}

func (s *Store) notify(sess domainauth.Session) {
	s.subMu.Lock()
	fns := make([]func(domainauth.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(sess)
	}
}

// ClassifyRemote turns an identity provider or document store error into a
// classified failure. Rejected credentials stay distinct from transport errors;
// a deadline hit by the per-call timeout counts as the service being unavailable.
func ClassifyRemote(parent context.Context, err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrInvalidCredentials):
		return apperrors.InvalidCredentials(err)
	case errors.Is(err, ports.ErrAccountExists):
		return apperrors.Wrap(err, apperrors.ErrCodeAlreadyExists, "an account with this email already exists")
	case errors.Is(err, ports.ErrUnsupported):
		return apperrors.Wrap(err, apperrors.ErrCodeUnsupported, fmt.Sprintf("%s is not supported by the identity provider", op))
	case errors.Is(err, ports.ErrNotFound):
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, fmt.Sprintf("%s: not found", op))
	case parent.Err() != nil && errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, fmt.Sprintf("%s canceled", op))
	default:
		return apperrors.ServiceUnavailable(err, fmt.Sprintf("%s failed", op))
	}
}
