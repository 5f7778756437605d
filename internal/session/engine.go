package session

import (
	"context"
	"errors"
	"log"
	"time"

	"kairos/server/internal/auth"
	"kairos/server/internal/crypto"
	"kairos/server/internal/metrics"
	"kairos/server/internal/model"
	"kairos/server/internal/repository"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMalformedPayload   = errors.New("malformed token payload")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

type UserStore interface {
	GetUserByPKI(ctx context.Context, pki string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	CreateUser(ctx context.Context, user model.User) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, userPki, ip, userAgent string, ttl time.Duration) (model.Session, error)
	FindActiveSession(ctx context.Context, sessionID, userPki string) (model.Session, error)
	InvalidateSession(ctx context.Context, sessionID string) error
	InvalidateAllSessionsForUser(ctx context.Context, userPki string) error
	CountActiveSessions(ctx context.Context, userPki string) (int64, error)
}

// Identity is what a validated request learns about its caller.
type Identity struct {
	PKI       string
	SessionID string
}

// Engine owns the session protocol: it is the only component that creates or
// invalidates sessions, and the only one that reads token internals.
type Engine struct {
	users        UserStore
	sessions     SessionStore
	locks        Locker
	secret       string
	issuer       string
	ttl          time.Duration
	singleActive bool
}

type EngineOptions struct {
	Secret              string
	Issuer              string
	SessionTTL          time.Duration
	SingleActiveSession bool
	// Locks serializes logins per user; defaults to an in-process KeyedMutex.
	Locks Locker
}

func NewEngine(users UserStore, sessions SessionStore, opts EngineOptions) *Engine {
	locks := opts.Locks
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &Engine{
		users:        users,
		sessions:     sessions,
		locks:        locks,
		secret:       opts.Secret,
		issuer:       opts.Issuer,
		ttl:          opts.SessionTTL,
		singleActive: opts.SingleActiveSession,
	}
}

type RegisterParams struct {
	PKI      string
	Name     string
	Email    string
	Password string
	Role     string
}

// Register creates a new user with a hashed password. Duplicate pki or email
// is ErrUserExists; the returned profile never carries the hash.
func (e *Engine) Register(ctx context.Context, params RegisterParams) (model.User, error) {
	if _, err := e.users.GetUserByEmail(ctx, params.Email); err == nil {
		return model.User{}, ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}
	if _, err := e.users.GetUserByPKI(ctx, params.PKI); err == nil {
		return model.User{}, ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}

	hash, err := crypto.HashPassword(params.Password)
	if err != nil {
		return model.User{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		PKI:            params.PKI,
		Name:           params.Name,
		Email:          params.Email,
		PasswordHash:   hash,
		Role:           params.Role,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastModifiedBy: "system",
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		// The unique index catches the register/register race the two
		// lookups above cannot.
		if errors.Is(err, repository.ErrDuplicate) {
			return model.User{}, ErrUserExists
		}
		return model.User{}, err
	}

	user.PasswordHash = ""
	return user, nil
}

// Login checks credentials, applies the single-active-session policy and
// issues a token over the fresh session. Unknown user and wrong password are
// deliberately the same error.
func (e *Engine) Login(ctx context.Context, pki, password, ip, userAgent string) (string, model.Session, model.User, error) {
	user, err := e.users.GetUserByPKI(ctx, pki)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.Logins.WithLabelValues("invalid_credentials").Inc()
			return "", model.Session{}, model.User{}, ErrInvalidCredentials
		}
		metrics.Logins.WithLabelValues("error").Inc()
		return "", model.Session{}, model.User{}, err
	}
	if err := crypto.CheckPassword(user.PasswordHash, password); err != nil {
		metrics.Logins.WithLabelValues("invalid_credentials").Inc()
		return "", model.Session{}, model.User{}, ErrInvalidCredentials
	}

	// Invalidate-all and create must not interleave with another login for
	// the same user, or two sessions could end up readable as valid.
	unlock, err := e.locks.Lock(ctx, pki)
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		return "", model.Session{}, model.User{}, err
	}
	defer unlock()

	if e.singleActive {
		if err := e.sessions.InvalidateAllSessionsForUser(ctx, pki); err != nil {
			metrics.Logins.WithLabelValues("error").Inc()
			return "", model.Session{}, model.User{}, err
		}
	}

	session, err := e.sessions.CreateSession(ctx, pki, ip, userAgent, e.ttl)
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		return "", model.Session{}, model.User{}, err
	}

	token, err := auth.NewSessionToken(e.secret, e.issuer, e.ttl, auth.Claims{
		PKI:       user.PKI,
		SessionID: session.SessionID,
	})
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		return "", model.Session{}, model.User{}, err
	}

	metrics.Logins.WithLabelValues("success").Inc()
	user.PasswordHash = ""
	return token, session, user, nil
}

// Logout invalidates the session the token points at. It is idempotent: a
// second logout with the same token still succeeds.
func (e *Engine) Logout(ctx context.Context, rawToken string) error {
	claims, err := auth.ParseSessionToken(e.secret, rawToken)
	if err != nil {
		if errors.Is(err, auth.ErrPayloadIncomplete) {
			return ErrMalformedPayload
		}
		return ErrInvalidToken
	}
	return e.sessions.InvalidateSession(ctx, claims.SessionID)
}

// Validate resolves a raw token to an authenticated identity. All failure
// modes collapse to ErrUnauthenticated; the precise reason is only logged.
func (e *Engine) Validate(ctx context.Context, rawToken string) (Identity, error) {
	claims, err := auth.ParseSessionToken(e.secret, rawToken)
	if err != nil {
		log.Printf("token rejected: %v", err)
		return Identity{}, ErrUnauthenticated
	}

	if _, err := e.sessions.FindActiveSession(ctx, claims.SessionID, claims.PKI); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("session lookup error: %v", err)
		}
		return Identity{}, ErrUnauthenticated
	}

	// Health signal only. Retroactively blocking would punish the latest
	// legitimate session, so a policy violation never fails the request.
	if count, err := e.sessions.CountActiveSessions(ctx, claims.PKI); err == nil && count > 1 {
		metrics.SessionAnomalies.Inc()
		log.Printf("user %s has %d active sessions, policy expects at most one", claims.PKI, count)
	}

	return Identity{PKI: claims.PKI, SessionID: claims.SessionID}, nil
}

// InvalidateUserSessions flips every session of the user and reports how many
// were active at the time.
func (e *Engine) InvalidateUserSessions(ctx context.Context, pki string) (int64, error) {
	count, err := e.sessions.CountActiveSessions(ctx, pki)
	if err != nil {
		return 0, err
	}
	if err := e.sessions.InvalidateAllSessionsForUser(ctx, pki); err != nil {
		return 0, err
	}
	return count, nil
}

// ActiveSession returns the caller's current session record and the user's
// active-session count.
func (e *Engine) ActiveSession(ctx context.Context, identity Identity) (model.Session, int64, error) {
	session, err := e.sessions.FindActiveSession(ctx, identity.SessionID, identity.PKI)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, 0, ErrUnauthenticated
		}
		return model.Session{}, 0, err
	}
	count, err := e.sessions.CountActiveSessions(ctx, identity.PKI)
	if err != nil {
		return model.Session{}, 0, err
	}
	return session, count, nil
}
