package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dishdash-auth/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// TokenPairResponse is returned by login, with 201 for a fresh pair and 202
// for the stored one.
type TokenPairResponse struct {
	Refresh           string `json:"refresh"`
	Access            string `json:"access"`
	AccessTokenExpiry string `json:"access_token_expiry"`
}

func toTokenPairResponse(p domain.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		Refresh:           p.Refresh,
		Access:            p.Access,
		AccessTokenExpiry: p.AccessTokenExpiry.UTC().Format(timeLayout),
	}
}

// VerifyResponse reports the outcome of an OTP check.
type VerifyResponse struct {
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProfileResponse is the public view of a profile.
type ProfileResponse struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Phone       *string `json:"phone"`
	ImageURL    *string `json:"image_url"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

func toProfileResponse(p *domain.Profile) ProfileResponse {
	resp := ProfileResponse{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Phone:       p.Phone,
		ImageURL:    p.ImageURL,
	}
	if !p.UpdatedAt.IsZero() {
		resp.UpdatedAt = p.UpdatedAt.UTC().Format(timeLayout)
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinels to status codes.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrDependency):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
