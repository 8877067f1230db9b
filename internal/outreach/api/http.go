package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sabihealth/outreach/internal/call"
	"github.com/sabihealth/outreach/internal/calllog"
	"github.com/sabihealth/outreach/internal/message"
	"github.com/sabihealth/outreach/internal/outreach"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/auth"
	"github.com/sabihealth/outreach/internal/shared/config"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
	"github.com/sabihealth/outreach/internal/symptom"
)

// Handler provides HTTP handlers for the outreach API
type Handler struct {
	outreach *outreach.Service
	calls    *call.Manager
	logs     *calllog.Recorder
	symptoms *symptom.Service
	auth     *config.AuthConfig
}

// HandlerConfig wires the handler. A nil Auth leaves the API open, which
// is how development mode runs.
type HandlerConfig struct {
	Outreach *outreach.Service
	Calls    *call.Manager
	Logs     *calllog.Recorder
	Symptoms *symptom.Service
	Auth     *config.AuthConfig
}

// NewHandler creates a new outreach handler
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		outreach: cfg.Outreach,
		calls:    cfg.Calls,
		logs:     cfg.Logs,
		symptoms: cfg.Symptoms,
		auth:     cfg.Auth,
	}
}

// Routes registers the outreach routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	if h.auth != nil {
		r.Use(auth.Middleware(*h.auth))
	}

	read := h.require(auth.RoleViewer, auth.RoleDispatcher)
	write := h.require(auth.RoleDispatcher)

	r.Route("/risk", func(r chi.Router) {
		r.With(read).Post("/evaluate", h.EvaluateRisk)
		r.With(read).Get("/{region}/{location}", h.GetRisk)
	})

	r.With(read).Get("/personas", h.ListPersonas)

	r.Route("/recipients", func(r chi.Router) {
		r.With(read).Get("/", h.ListRecipients)
		r.With(read).Get("/{recipientID}", h.GetRecipient)
	})

	r.Route("/calls", func(r chi.Router) {
		r.With(read).Get("/", h.ListCalls)
		r.With(write).Post("/", h.TriggerCall)

		r.Route("/{callID}", func(r chi.Router) {
			r.With(read).Get("/", h.GetCall)

			// Transitions
			r.With(write).Post("/answer", h.AnswerCall)
			r.With(write).Post("/decline", h.DeclineCall)
			r.With(write).Post("/respond", h.RespondCall)
		})
	})

	r.Route("/logs", func(r chi.Router) {
		r.With(read).Get("/", h.ListLogs)
		r.With(read).Get("/{sessionID}", h.GetLog)
	})

	r.Route("/symptoms", func(r chi.Router) {
		r.With(read).Get("/", h.ListSymptoms)
		r.With(write).Post("/", h.SubmitSymptoms)
	})

	return r
}

func (h *Handler) require(roles ...string) func(http.Handler) http.Handler {
	if h.auth == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return auth.RequireRoles(roles...)
}

// --- Request/Response types ---

type EvaluateRiskRequest struct {
	Location   string         `json:"location"`
	Region     string         `json:"region"`
	RainfallMM *float64       `json:"rainfall_mm,omitempty"`
	Hotspots   []risk.Hotspot `json:"hotspots,omitempty"`
}

type TriggerCallRequest struct {
	RecipientID types.ID `json:"recipient_id"`
}

type RespondRequest struct {
	Response string `json:"response"`
}

type SubmitSymptomsRequest struct {
	RecipientID types.ID         `json:"recipient_id"`
	Symptoms    symptom.Symptoms `json:"symptoms"`
	Notes       string           `json:"notes,omitempty"`
}

// --- Risk Handlers ---

// EvaluateRisk classifies a location. A request carrying a signal is
// evaluated as given; otherwise the configured signal source is used.
func (h *Handler) EvaluateRisk(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	location := risk.LocationUnit{Name: req.Location, Region: req.Region}
	if err := location.Validate(); err != nil {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"location": err.Error(),
		}))
		return
	}
	for _, hs := range req.Hotspots {
		if !hs.Severity.Valid() {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"hotspots": "severity must be low, medium or high",
			}))
			return
		}
	}

	evaluator := h.outreach.Evaluator()
	if req.RainfallMM == nil && req.Hotspots == nil {
		writeJSON(w, http.StatusOK, evaluator.Assess(r.Context(), location))
		return
	}

	signal := risk.RiskSignal{Hotspots: req.Hotspots}
	if req.RainfallMM != nil {
		signal.RainfallMM = *req.RainfallMM
	}
	writeJSON(w, http.StatusOK, evaluator.Record(location, signal))
}

// GetRisk evaluates a location from the signal source
func (h *Handler) GetRisk(w http.ResponseWriter, r *http.Request) {
	location := risk.LocationUnit{
		Name:   chi.URLParam(r, "location"),
		Region: chi.URLParam(r, "region"),
	}
	if err := location.Validate(); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, h.outreach.Evaluator().Assess(r.Context(), location))
}

// ListPersonas lists the available caller personas
func (h *Handler) ListPersonas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data":    message.Personas(),
		"default": message.DefaultPersona,
	})
}

// --- Recipient Handlers ---

// ListRecipients lists registered recipients
func (h *Handler) ListRecipients(w http.ResponseWriter, r *http.Request) {
	people, err := h.outreach.Recipients().List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  people,
		"total": len(people),
	})
}

// GetRecipient gets a recipient by ID
func (h *Handler) GetRecipient(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "recipientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid recipient ID"))
		return
	}
	person, err := h.outreach.Recipients().FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// --- Call Handlers ---

// ListCalls lists live sessions, optionally for one recipient
func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := optionalID(w, r, "recipient_id")
	if !ok {
		return
	}
	sessions := h.calls.List(r.Context(), recipientID)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  sessions,
		"total": len(sessions),
	})
}

// TriggerCall starts a manual call for a recipient
func (h *Handler) TriggerCall(w http.ResponseWriter, r *http.Request) {
	var req TriggerCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.RecipientID.IsZero() {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"recipient_id": "recipient_id is required",
		}))
		return
	}

	session, err := h.outreach.TriggerFor(r.Context(), req.RecipientID, call.TriggerManual)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// GetCall gets a session by ID
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	id, ok := callID(w, r)
	if !ok {
		return
	}
	session, err := h.calls.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// AnswerCall connects the call and delivers the script
func (h *Handler) AnswerCall(w http.ResponseWriter, r *http.Request) {
	id, ok := callID(w, r)
	if !ok {
		return
	}
	session, err := h.calls.Answer(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// DeclineCall ends an unanswered call
func (h *Handler) DeclineCall(w http.ResponseWriter, r *http.Request) {
	id, ok := callID(w, r)
	if !ok {
		return
	}
	session, err := h.calls.Decline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// RespondCall records the keypad or voice response
func (h *Handler) RespondCall(w http.ResponseWriter, r *http.Request) {
	id, ok := callID(w, r)
	if !ok {
		return
	}

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	response, err := call.ParseResponse(req.Response)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.calls.SubmitResponse(r.Context(), id, response)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// --- Log Handlers ---

// ListLogs lists call log entries, newest first
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := optionalID(w, r, "recipient_id")
	if !ok {
		return
	}
	filter := calllog.Filter{RecipientID: recipientID, Limit: queryInt(r, "limit")}

	entries, err := h.logs.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": len(entries),
	})
}

// GetLog gets the log entry for a session
func (h *Handler) GetLog(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid session ID"))
		return
	}
	entry, err := h.logs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// --- Symptom Handlers ---

// SubmitSymptoms stores a symptom report
func (h *Handler) SubmitSymptoms(w http.ResponseWriter, r *http.Request) {
	var req SubmitSymptomsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	report, err := h.symptoms.Submit(r.Context(), req.RecipientID, req.Symptoms, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// ListSymptoms lists a recipient's symptom reports
func (h *Handler) ListSymptoms(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := optionalID(w, r, "recipient_id")
	if !ok {
		return
	}
	if recipientID.IsZero() {
		writeError(w, errors.BadRequest("recipient_id is required"))
		return
	}
	reports, err := h.symptoms.List(r.Context(), recipientID, queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  reports,
		"total": len(reports),
	})
}

// --- Helpers ---

func callID(w http.ResponseWriter, r *http.Request) (types.ID, bool) {
	id, err := types.ParseID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid call ID"))
		return "", false
	}
	return id, true
}

func optionalID(w http.ResponseWriter, r *http.Request, param string) (types.ID, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return "", true
	}
	id, err := types.ParseID(raw)
	if err != nil {
		writeError(w, errors.BadRequest("invalid "+param))
		return "", false
	}
	return id, true
}

func queryInt(r *http.Request, param string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(param))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
