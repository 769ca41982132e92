package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"

	"datavault/i18n"
	"datavault/models"
	"datavault/secrets"
)

const maxBodyBytes = 8 << 20

// NoteStore is the subset of the note repository the API needs.
type NoteStore interface {
	Create(ctx context.Context, title, content string) (models.Note, error)
	List(ctx context.Context) ([]models.Note, error)
	GetByID(ctx context.Context, id int64) (models.Note, bool, error)
	Update(ctx context.Context, id int64, title, content string) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type noteInput struct {
	Title   string `json:"title" validate:"required,max=512"`
	Content string `json:"content" validate:"max=1048576"`
}

// API serves notes over local HTTP.
type API struct {
	notes    NoteStore
	validate *validator.Validate
	limiter  *rateLimiter
	logger   *slog.Logger
}

func NewAPI(notes NoteStore, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		notes:    notes,
		validate: validator.New(),
		limiter:  newRateLimiter(),
		logger:   logger,
	}
}

func sendJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func sendError(w http.ResponseWriter, r *http.Request, status int, key string) {
	lang := i18n.DetectLanguage(r)
	sendJSONResponse(w, status, APIResponse{Status: "error", Message: i18n.T(lang, key)})
}

// storeError maps a repository failure to a response. A missing secret is
// reported as such; nothing is ever served under a substitute key.
func (a *API) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	a.logger.Error("note store failure", "op", op, "error", err)
	if errors.Is(err, secrets.ErrSecretUnavailable) {
		sendError(w, r, http.StatusInternalServerError, "SecretUnavailable")
		return
	}
	sendError(w, r, http.StatusInternalServerError, "InternalServerError")
}

func noteID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// decodeInput reads and validates a note body, writing the error response
// itself when it returns false.
func (a *API) decodeInput(w http.ResponseWriter, r *http.Request) (noteInput, bool) {
	var input noteInput
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, r, http.StatusBadRequest, "InvalidRequestBody")
		return input, false
	}

	if err := a.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
			sendError(w, r, http.StatusBadRequest, "TitleRequired")
		} else {
			sendError(w, r, http.StatusBadRequest, "FieldTooLong")
		}
		return input, false
	}
	return input, true
}

// allowWrite applies the per-client write throttle.
func (a *API) allowWrite(w http.ResponseWriter, r *http.Request) bool {
	ip := getClientIP(r)
	if !a.limiter.Allow(ip) {
		sendError(w, r, http.StatusTooManyRequests, "TooManyRequests")
		return false
	}
	a.limiter.Record(ip)
	return true
}

func (a *API) ListNotesHandler(w http.ResponseWriter, r *http.Request) {
	notes, err := a.notes.List(r.Context())
	if err != nil {
		a.storeError(w, r, "list", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: notes})
}

func (a *API) CreateNoteHandler(w http.ResponseWriter, r *http.Request) {
	if !a.allowWrite(w, r) {
		return
	}
	input, ok := a.decodeInput(w, r)
	if !ok {
		return
	}

	note, err := a.notes.Create(r.Context(), input.Title, input.Content)
	if err != nil {
		a.storeError(w, r, "create", err)
		return
	}
	sendJSONResponse(w, http.StatusCreated, APIResponse{Status: "success", Data: note})
}

func (a *API) GetNoteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		sendError(w, r, http.StatusBadRequest, "InvalidNoteID")
		return
	}

	note, found, err := a.notes.GetByID(r.Context(), id)
	if err != nil {
		a.storeError(w, r, "get", err)
		return
	}
	if !found {
		sendError(w, r, http.StatusNotFound, "NoteNotFound")
		return
	}
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: note})
}

func (a *API) UpdateNoteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		sendError(w, r, http.StatusBadRequest, "InvalidNoteID")
		return
	}
	if !a.allowWrite(w, r) {
		return
	}
	input, ok := a.decodeInput(w, r)
	if !ok {
		return
	}

	updated, err := a.notes.Update(r.Context(), id, input.Title, input.Content)
	if err != nil {
		a.storeError(w, r, "update", err)
		return
	}
	if !updated {
		sendError(w, r, http.StatusNotFound, "NoteNotFound")
		return
	}
	lang := i18n.DetectLanguage(r)
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: i18n.T(lang, "NoteUpdated")})
}

func (a *API) DeleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		sendError(w, r, http.StatusBadRequest, "InvalidNoteID")
		return
	}
	if !a.allowWrite(w, r) {
		return
	}

	deleted, err := a.notes.Delete(r.Context(), id)
	if err != nil {
		a.storeError(w, r, "delete", err)
		return
	}
	if !deleted {
		sendError(w, r, http.StatusNotFound, "NoteNotFound")
		return
	}
	lang := i18n.DetectLanguage(r)
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: i18n.T(lang, "NoteDeleted")})
}

// CSRFTokenHandler hands browser clients the token unsafe methods require.
func (a *API) CSRFTokenHandler(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: map[string]string{"token": csrf.Token(r)}})
}

// NewRouter registers the API routes.
func NewRouter(a *API) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/notes", a.ListNotesHandler).Methods(http.MethodGet)
	api.HandleFunc("/notes", a.CreateNoteHandler).Methods(http.MethodPost)
	api.HandleFunc("/notes/{id}", a.GetNoteHandler).Methods(http.MethodGet)
	api.HandleFunc("/notes/{id}", a.UpdateNoteHandler).Methods(http.MethodPut)
	api.HandleFunc("/notes/{id}", a.DeleteNoteHandler).Methods(http.MethodDelete)
	api.HandleFunc("/csrf", a.CSRFTokenHandler).Methods(http.MethodGet)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, r, http.StatusNotFound, "NotFound")
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed")
	})
	// mux only consults the handlers of the router that matched the path.
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = methodNotAllowed
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
	return router
}
