package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kairos/server/internal/config"
	"kairos/server/internal/crypto"
	"kairos/server/internal/model"
	"kairos/server/internal/repository"
	"kairos/server/internal/session"
)

// Store is the persistence surface the handlers need beyond the engine.
// *repository.Store satisfies it.
type Store interface {
	GetUserByPKI(ctx context.Context, pki string) (model.User, error)
	UpdateUser(ctx context.Context, pki, modifiedBy string, update repository.UserUpdate) error
	GetUsersByPKI(ctx context.Context, pkis []string) ([]model.User, error)
	CountUsersByPKI(ctx context.Context, pkis []string) (int64, error)
	GetTeamByID(ctx context.Context, teamID string) (model.Team, error)
	ListTeams(ctx context.Context) ([]model.Team, error)
	CreateTeam(ctx context.Context, team model.Team) error
	UpdateTeam(ctx context.Context, teamID, modifiedBy string, update repository.TeamUpdate) (model.Team, error)
}

type Server struct {
	cfg    config.Config
	engine *session.Engine
	store  Store
	gate   *Gate
}

func NewServer(cfg config.Config, engine *session.Engine, store Store) *Server {
	gate := NewGate(engine,
		[]Route{
			{Method: http.MethodPost, Path: "/api/auth/register"},
			{Method: http.MethodPost, Path: "/api/auth/login"},
			{Method: http.MethodPost, Path: "/api/auth/logout"},
		},
		[]Route{
			{Method: http.MethodGet, Path: "/api/teams"},
		},
	)
	return &Server{cfg: cfg, engine: engine, store: store, gate: gate}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(s.gate.Handler)

		api.Post("/auth/register", s.handleRegister)
		api.Post("/auth/login", s.handleLogin)
		api.Post("/auth/logout", s.handleLogout)
		api.Delete("/auth/sessions", s.handleInvalidateSessions)
		api.Get("/auth/session", s.handleActiveSession)

		api.Get("/users/me", s.handleGetMe)
		api.Put("/users/{pki}", s.handleUpdateUser)

		api.Post("/teams", s.handleCreateTeam)
		api.Get("/teams", s.handleListTeams)
		api.Put("/teams/{id}", s.handleUpdateTeam)
		api.Put("/teams/delete/{id}", s.handleDeleteTeam)
	})

	return r
}

type userResponse struct {
	PKI       string    `json:"pki"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func mapUserResponse(user model.User) userResponse {
	return userResponse{
		PKI:       user.PKI,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type registerRequest struct {
	PKI      string `json:"pki"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.PKI = strings.TrimSpace(req.PKI)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.PKI == "" || req.Email == "" || req.Password == "" || req.Name == "" || req.Role == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	user, err := s.engine.Register(r.Context(), session.RegisterParams{
		PKI:      req.PKI,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		if errors.Is(err, session.ErrUserExists) {
			writeMessage(w, http.StatusForbidden, "User already exists")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Created",
		"user":    mapUserResponse(user),
	})
}

type loginRequest struct {
	PKI      string `json:"pki"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.PKI = strings.TrimSpace(req.PKI)
	if req.PKI == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Missing credentials")
		return
	}

	token, sess, user, err := s.engine.Login(r.Context(), req.PKI, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Error logging in")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Login successful",
		"token":     token,
		"sessionId": sess.SessionID,
		"user":      mapUserResponse(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeMessage(w, http.StatusUnauthorized, "Token not provided")
		return
	}

	if err := s.engine.Logout(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, session.ErrMalformedPayload):
			writeMessage(w, http.StatusBadRequest, "Invalid token format")
		case errors.Is(err, session.ErrInvalidToken):
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
		default:
			writeMessage(w, http.StatusInternalServerError, "Error logging out")
		}
		return
	}

	writeMessage(w, http.StatusOK, "Logout successful")
}

func (s *Server) handleInvalidateSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Token not provided")
		return
	}

	count, err := s.engine.InvalidateUserSessions(r.Context(), identity.PKI)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error invalidating sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Sessions invalidated",
		"invalidated": count,
	})
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Token not provided")
		return
	}

	sess, count, err := s.engine.ActiveSession(r.Context(), identity)
	if err != nil {
		if errors.Is(err, session.ErrUnauthenticated) {
			writeMessage(w, http.StatusNotFound, "No active session")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Error fetching session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Session fetched",
		"session": sessionResponse{
			SessionID: sess.SessionID,
			IP:        sess.IP,
			UserAgent: sess.UserAgent,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
		},
		"activeSessions": count,
	})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Token not provided")
		return
	}

	user, err := s.store.GetUserByPKI(r.Context(), identity.PKI)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Error fetching user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User fetched",
		"user":    mapUserResponse(user),
	})
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
	Active   *bool   `json:"active"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Token not provided")
		return
	}

	pki := chi.URLParam(r, "pki")
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	update := repository.UserUpdate{
		Name:   req.Name,
		Email:  req.Email,
		Role:   req.Role,
		Active: req.Active,
	}
	// Only a newly supplied raw password is re-hashed; the stored hash is
	// never hashed twice.
	if req.Password != nil && *req.Password != "" {
		hash, err := crypto.HashPassword(*req.Password)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Error updating user")
			return
		}
		update.PasswordHash = &hash
	}

	if err := s.store.UpdateUser(r.Context(), pki, identity.PKI, update); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeMessage(w, http.StatusNotFound, "User not found")
		case errors.Is(err, repository.ErrDuplicate):
			writeMessage(w, http.StatusForbidden, "Email already in use")
		default:
			writeMessage(w, http.StatusInternalServerError, "Error updating user")
		}
		return
	}

	user, err := s.store.GetUserByPKI(r.Context(), pki)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error updating user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User updated",
		"user":    mapUserResponse(user),
	})
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
