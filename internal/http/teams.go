package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kairos/server/internal/model"
	"kairos/server/internal/repository"
)

type teamResponse struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Active         bool           `json:"active"`
	Users          []userResponse `json:"users"`
	Managers       []userResponse `json:"managers"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	LastModifiedBy string         `json:"lastModifiedBy"`
}

// mapTeamResponse resolves member and manager references to profile
// summaries, the equivalent of populating the references at read time.
func (s *Server) mapTeamResponse(ctx context.Context, team model.Team) (teamResponse, error) {
	resolve := func(pkis []string) ([]userResponse, error) {
		users, err := s.store.GetUsersByPKI(ctx, pkis)
		if err != nil {
			return nil, err
		}
		byPKI := make(map[string]model.User, len(users))
		for _, user := range users {
			byPKI[user.PKI] = user
		}
		summaries := make([]userResponse, 0, len(pkis))
		for _, pki := range pkis {
			if user, ok := byPKI[pki]; ok {
				summaries = append(summaries, mapUserResponse(user))
			}
		}
		return summaries, nil
	}

	users, err := resolve(team.Users)
	if err != nil {
		return teamResponse{}, err
	}
	managers, err := resolve(team.Managers)
	if err != nil {
		return teamResponse{}, err
	}

	return teamResponse{
		ID:             team.TeamID,
		Name:           team.Name,
		Active:         team.Active,
		Users:          users,
		Managers:       managers,
		CreatedAt:      team.CreatedAt,
		UpdatedAt:      team.UpdatedAt,
		LastModifiedBy: team.LastModifiedBy,
	}, nil
}

// checkUserRefs verifies every referenced pki resolves to a stored user.
func (s *Server) checkUserRefs(ctx context.Context, pkis []string) (bool, error) {
	if len(pkis) == 0 {
		return true, nil
	}
	unique := make([]string, 0, len(pkis))
	seen := make(map[string]struct{}, len(pkis))
	for _, pki := range pkis {
		if _, ok := seen[pki]; ok {
			continue
		}
		seen[pki] = struct{}{}
		unique = append(unique, pki)
	}
	count, err := s.store.CountUsersByPKI(ctx, unique)
	if err != nil {
		return false, err
	}
	return count == int64(len(unique)), nil
}

type createTeamRequest struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Active   *bool    `json:"active"`
	Users    []string `json:"users"`
	Managers []string `json:"managers"`
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Token not provided")
		return
	}

	var req createTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeMessage(w, http.StatusBadRequest, "Missing team name")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if _, err := s.store.GetTeamByID(r.Context(), req.ID); err == nil {
		writeMessage(w, http.StatusForbidden, "Team already exists")
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		writeMessage(w, http.StatusInternalServerError, "Error creating team")
		return
	}

	if ok, err := s.checkUserRefs(r.Context(), req.Users); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error creating team")
		return
	} else if !ok {
		writeMessage(w, http.StatusBadRequest, "One or more users not found")
		return
	}
	if ok, err := s.checkUserRefs(r.Context(), req.Managers); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error creating team")
		return
	} else if !ok {
		writeMessage(w, http.StatusBadRequest, "One or more managers not found")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	now := time.Now().UTC()
	team := model.Team{
		TeamID:         req.ID,
		Name:           req.Name,
		Active:         active,
		Users:          req.Users,
		Managers:       req.Managers,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastModifiedBy: identity.PKI,
	}
	if err := s.store.CreateTeam(r.Context(), team); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeMessage(w, http.StatusForbidden, "Team already exists")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Error creating team")
		return
	}

	resp, err := s.mapTeamResponse(r.Context(), team)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error creating team")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Team created",
		"team":    resp,
	})
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.store.ListTeams(r.Context())
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error fetching teams")
		return
	}

	responses := make([]teamResponse, 0, len(teams))
	for _, team := range teams {
		resp, err := s.mapTeamResponse(r.Context(), team)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Error fetching teams")
			return
		}
		responses = append(responses, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Teams fetched",
		"teams":   responses,
	})
}

type updateTeamRequest struct {
	Name     *string   `json:"name"`
	Active   *bool     `json:"active"`
	Users    *[]string `json:"users"`
	Managers *[]string `json:"managers"`
}

func (s *Server) handleUpdateTeam(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Token not provided")
		return
	}

	teamID := chi.URLParam(r, "id")
	var req updateTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := s.store.GetTeamByID(r.Context(), teamID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Team not found")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Error updating team")
		return
	}

	if req.Users != nil {
		if ok, err := s.checkUserRefs(r.Context(), *req.Users); err != nil {
			writeMessage(w, http.StatusInternalServerError, "Error updating team")
			return
		} else if !ok {
			writeMessage(w, http.StatusBadRequest, "One or more users not found")
			return
		}
	}
	if req.Managers != nil {
		if ok, err := s.checkUserRefs(r.Context(), *req.Managers); err != nil {
			writeMessage(w, http.StatusInternalServerError, "Error updating team")
			return
		} else if !ok {
			writeMessage(w, http.StatusBadRequest, "One or more managers not found")
			return
		}
	}

	team, err := s.store.UpdateTeam(r.Context(), teamID, identity.PKI, repository.TeamUpdate{
		Name:     req.Name,
		Active:   req.Active,
		Users:    req.Users,
		Managers: req.Managers,
	})
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error updating team")
		return
	}

	resp, err := s.mapTeamResponse(r.Context(), team)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error updating team")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Team updated",
		"team":    resp,
	})
}

// handleDeleteTeam deactivates a team; team records are never hard-deleted.
func (s *Server) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Token not provided")
		return
	}

	teamID := chi.URLParam(r, "id")
	if _, err := s.store.GetTeamByID(r.Context(), teamID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Team not found")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Error deactivating team")
		return
	}

	inactive := false
	team, err := s.store.UpdateTeam(r.Context(), teamID, identity.PKI, repository.TeamUpdate{Active: &inactive})
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error deactivating team")
		return
	}

	resp, err := s.mapTeamResponse(r.Context(), team)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error deactivating team")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Team Deactivated",
		"team":    resp,
	})
}
