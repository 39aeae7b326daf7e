package handler

import (
	"net/http"

	"github.com/dishdash-auth/internal/application/otp"
	"github.com/dishdash-auth/internal/domain"
	"github.com/go-chi/chi/v5"
)

// OTPHandler issues and checks one-time codes on /otp/{channel}/{action}.
type OTPHandler struct {
	svc otp.Service
}

func NewOTPHandler(svc otp.Service) *OTPHandler { return &OTPHandler{svc: svc} }

func (h *OTPHandler) Action(w http.ResponseWriter, r *http.Request) {
	channel, err := domain.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		httpError(w, err)
		return
	}
	switch chi.URLParam(r, "action") {
	case "request":
		h.request(w, r, channel)
	case "verify":
		h.verify(w, r, channel)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *OTPHandler) request(w http.ResponseWriter, r *http.Request, channel domain.Channel) {
	var req domain.OTPRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Request(r.Context(), channel, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OTPHandler) verify(w http.ResponseWriter, r *http.Request, channel domain.Channel) {
	var req domain.OTPVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	outcome, err := h.svc.Verify(r.Context(), channel, req)
	if err != nil {
		httpError(w, err)
		return
	}
	switch outcome {
	case domain.OutcomeMatched:
		writeJSON(w, http.StatusOK, VerifyResponse{Outcome: outcome.String(), Message: "OTP verified"})
	case domain.OutcomeMismatched:
		writeJSON(w, http.StatusNotFound, VerifyResponse{Outcome: outcome.String(), Error: "OTP does not match"})
	default:
		writeJSON(w, http.StatusBadRequest, VerifyResponse{Outcome: outcome.String(), Error: "no active OTP"})
	}
}
