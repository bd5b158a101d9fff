package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/taskvault/backend/internal/errors"
	"github.com/taskvault/backend/internal/logger"
	"github.com/taskvault/backend/internal/models"
)

const maxBodyBytes = 1 << 20

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// EventRecorder counts authentication outcomes.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) AuthEvent(string, string) {}

type Handlers struct {
	authService *Service
	events      EventRecorder
	log         *logger.Logger
}

func NewHandlers(authService *Service, events EventRecorder, log *logger.Logger) *Handlers {
	if events == nil {
		events = noopRecorder{}
	}
	return &Handlers{
		authService: authService,
		events:      events,
		log:         log.WithComponent("auth"),
	}
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) error {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	user, err := h.authService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.events.AuthEvent("register", outcome(err))
		return mapError(err)
	}

	h.events.AuthEvent("register", "success")
	h.log.Info(r.Context(), "user registered", map[string]any{"user_id": user.ID.String()})
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusCreated, user)
	return nil
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	details := map[string]any{}
	if req.Email == "" {
		details["email"] = "field required"
	}
	if req.Password == "" {
		details["password"] = "field required"
	}
	if len(details) > 0 {
		return apperrors.ValidationError("request validation failed").WithDetails(details)
	}

	pair, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.events.AuthEvent("login", outcome(err))
		return mapError(err)
	}

	h.events.AuthEvent("login", "success")
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, pair)
	return nil
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) error {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.RefreshToken == "" {
		return apperrors.ValidationError("request validation failed").
			WithDetails(map[string]any{"refresh_token": "field required"})
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.events.AuthEvent("refresh", outcome(err))
		return mapError(err)
	}

	h.events.AuthEvent("refresh", "success")
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, pair)
	return nil
}

// Logout requires Middleware.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) error {
	user, ok := UserFromContext(r.Context())
	if !ok {
		return apperrors.Unauthorized("Not authenticated")
	}

	revoked, err := h.authService.Logout(r.Context(), user.ID)
	if err != nil {
		h.events.AuthEvent("logout", outcome(err))
		return mapError(err)
	}

	h.events.AuthEvent("logout", "success")
	h.log.Info(r.Context(), "user logged out", map[string]any{
		"user_id":          user.ID.String(),
		"sessions_revoked": revoked,
	})
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK,
		MessageResponse{Message: "Successfully logged out"})
	return nil
}

// Me requires Middleware.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) error {
	user, ok := UserFromContext(r.Context())
	if !ok {
		return apperrors.Unauthorized("Not authenticated")
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, NewUserInfo(user))
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	return nil
}

func outcome(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, models.ErrEmailExists):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUnauthenticated):
		return "failure"
	default:
		return "error"
	}
}

// mapError translates service errors into API errors. Every authentication
// failure becomes a 401; storage outages stay distinguishable as 503.
func mapError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.ValidationError("request validation failed").WithDetails(verr.Fields)
	case errors.Is(err, ErrInvalidCredentials):
		return apperrors.InvalidCredentials()
	case errors.Is(err, ErrInvalidToken):
		return apperrors.InvalidToken("Invalid or expired token")
	case errors.Is(err, ErrUnauthenticated):
		return apperrors.Unauthorized("Could not validate credentials")
	case errors.Is(err, models.ErrEmailExists):
		return apperrors.EmailExists()
	case errors.Is(err, models.ErrStoreUnavailable):
		return apperrors.StoreUnavailable().WithCause(err)
	default:
		return err
	}
}
