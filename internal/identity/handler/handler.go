// Package handler exposes the identity registry over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"ballotgate/internal/identity/models"
	"ballotgate/internal/transport/http/shared"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/requestcontext"
)

// Service defines the identity operations the handler needs.
type Service interface {
	Register(ctx context.Context, req models.RegistrationRequest) (*models.RegistrationResult, error)
	ConfirmCode(ctx context.Context, identityID id.IdentityID, code string) (*models.AuthResult, error)
	Authenticate(ctx context.Context, nationalID, secret string) (*models.AuthResult, error)
	Profile(ctx context.Context, identityID id.IdentityID) (*models.ProfileView, error)
	ChangeSecret(ctx context.Context, identityID id.IdentityID, current, next string) error
}

// Middleware guards the authenticated routes.
type Middleware func(http.Handler) http.Handler

type Handler struct {
	logger   *slog.Logger
	identity Service
	auth     Middleware
}

func New(identity Service, auth Middleware, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		identity: identity,
		auth:     auth,
	}
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identity/register", h.handleRegister)
	r.Post("/identity/confirm", h.handleConfirm)
	r.Post("/identity/login", h.handleLogin)
	r.With(h.auth).Get("/identity/me", h.handleProfile)
	r.With(h.auth).Post("/identity/password", h.handleChangePassword)
}

type registerRequest struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Email      string `json:"email"`
	Mobile     string `json:"mobile"`
	Address    string `json:"address"`
	NationalID string `json:"national_id"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	if err := validateRegisterRequest(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	res, err := h.identity.Register(ctx, models.RegistrationRequest{
		Name:       req.Name,
		Age:        req.Age,
		Email:      req.Email,
		Mobile:     req.Mobile,
		Address:    req.Address,
		NationalID: req.NationalID,
		Secret:     req.Password,
		Role:       req.Role,
	})
	if err != nil {
		h.logWarn(ctx, "registration rejected", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"identity_id": res.IdentityID,
		"email":       res.Email,
		"message":     "verification code sent",
	})
}

type confirmRequest struct {
	IdentityID string `json:"identity_id"`
	Code       string `json:"code"`
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	identityID, err := id.ParseIdentityID(req.IdentityID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid identity_id"))
		return
	}

	res, err := h.identity.ConfirmCode(ctx, identityID, req.Code)
	if err != nil {
		h.logWarn(ctx, "code confirmation rejected", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"token": res.Token,
		"role":  res.Role,
	})
}

type loginRequest struct {
	NationalID string `json:"national_id"`
	Password   string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	res, err := h.identity.Authenticate(ctx, req.NationalID, req.Password)
	if err != nil {
		h.logWarn(ctx, "login rejected", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"token": res.Token,
		"role":  res.Role,
	})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityID, ok := requestcontext.IdentityID(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	profile, err := h.identity.Profile(ctx, identityID)
	if err != nil {
		h.logWarn(ctx, "profile lookup failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, profile)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityID, ok := requestcontext.IdentityID(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	if !govalidator.StringLength(req.NewPassword, "8", "128") {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "new password must be between 8 and 128 characters"))
		return
	}

	if err := h.identity.ChangeSecret(ctx, identityID, req.CurrentPassword, req.NewPassword); err != nil {
		h.logWarn(ctx, "password change rejected", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateRegisterRequest(req registerRequest) error {
	if !govalidator.StringLength(req.Name, "1", "255") {
		return dErrors.New(dErrors.CodeValidation, "invalid name")
	}
	if !govalidator.StringLength(req.Email, "1", "255") || !govalidator.IsEmail(req.Email) {
		return dErrors.New(dErrors.CodeValidation, "invalid email")
	}
	if !govalidator.StringLength(req.Mobile, "10", "15") || !govalidator.IsNumeric(req.Mobile) {
		return dErrors.New(dErrors.CodeValidation, "invalid mobile number")
	}
	if !govalidator.StringLength(req.Password, "8", "128") {
		return dErrors.New(dErrors.CodeValidation, "password must be between 8 and 128 characters")
	}
	return nil
}

func (h *Handler) logWarn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
