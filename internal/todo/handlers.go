package todo

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskvault/backend/internal/auth"
	apperrors "github.com/taskvault/backend/internal/errors"
	"github.com/taskvault/backend/internal/logger"
	"github.com/taskvault/backend/internal/models"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	service *Service
	log     *logger.Logger
}

func NewHandlers(service *Service, log *logger.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.WithComponent("todo"),
	}
}

// Routes mounts the todo endpoints. The caller is responsible for placing
// them behind the bearer middleware.
func (h *Handlers) Routes(r chi.Router, report apperrors.Reporter) {
	r.Post("/", apperrors.HandleFunc(h.Create, report))
	r.Get("/", apperrors.HandleFunc(h.List, report))
	r.Get("/{id}", apperrors.HandleFunc(h.Get, report))
	r.Patch("/{id}", apperrors.HandleFunc(h.Update, report))
	r.Delete("/{id}", apperrors.HandleFunc(h.Delete, report))
	r.Post("/{id}/complete", apperrors.HandleFunc(h.Complete, report))
}

func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) error {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return apperrors.Unauthorized("Not authenticated")
	}

	var in CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}

	todo, err := h.service.Create(r.Context(), user.ID, in)
	if err != nil {
		return mapError(err)
	}

	h.log.Debug(r.Context(), "todo created", map[string]any{
		"user_id": user.ID.String(),
		"todo_id": todo.ID.String(),
	})
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusCreated, todo)
	return nil
}

func (h *Handlers) List(w http.ResponseWriter, r *http.Request) error {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return apperrors.Unauthorized("Not authenticated")
	}

	q := r.URL.Query()
	fields := map[string]any{}
	page := queryInt(q.Get("page"), "page", fields)
	perPage := queryInt(q.Get("per_page"), "per_page", fields)
	if len(fields) > 0 {
		return apperrors.ValidationError("request validation failed").WithDetails(fields)
	}

	result, err := h.service.List(r.Context(), user.ID, ListQuery{
		Page:      page,
		PerPage:   perPage,
		Status:    q.Get("status"),
		Priority:  q.Get("priority"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	})
	if err != nil {
		return mapError(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, result)
	return nil
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) error {
	user, id, err := ownerAndID(r)
	if err != nil {
		return err
	}

	todo, err := h.service.Get(r.Context(), user.ID, id)
	if err != nil {
		return mapError(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, todo)
	return nil
}

func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) error {
	user, id, err := ownerAndID(r)
	if err != nil {
		return err
	}

	var in UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}

	todo, err := h.service.Update(r.Context(), user.ID, id, in)
	if err != nil {
		return mapError(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, todo)
	return nil
}

func (h *Handlers) Complete(w http.ResponseWriter, r *http.Request) error {
	user, id, err := ownerAndID(r)
	if err != nil {
		return err
	}

	todo, err := h.service.Complete(r.Context(), user.ID, id)
	if err != nil {
		return mapError(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, todo)
	return nil
}

func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) error {
	user, id, err := ownerAndID(r)
	if err != nil {
		return err
	}

	if err := h.service.Delete(r.Context(), user.ID, id); err != nil {
		return mapError(err)
	}

	h.log.Debug(r.Context(), "todo deleted", map[string]any{
		"user_id": user.ID.String(),
		"todo_id": id.String(),
	})
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusNoContent, nil)
	return nil
}

func ownerAndID(r *http.Request) (*models.User, uuid.UUID, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, uuid.Nil, apperrors.Unauthorized("Not authenticated")
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, uuid.Nil, apperrors.ValidationError("request validation failed").
			WithDetails(map[string]any{"id": "must be a valid UUID"})
	}
	return user, id, nil
}

func queryInt(raw, name string, fields map[string]any) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		fields[name] = "must be a positive integer"
		return 0
	}
	return n
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	return nil
}

func mapError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.ValidationError("request validation failed").WithDetails(verr.Fields)
	case errors.Is(err, models.ErrTodoNotFound):
		return apperrors.NotFound("Todo")
	case errors.Is(err, models.ErrStoreUnavailable):
		return apperrors.StoreUnavailable().WithCause(err)
	default:
		return err
	}
}
