package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/assignment"
	"github.com/fentz26/leaddesk/internal/formatter"
	"github.com/fentz26/leaddesk/internal/importer"
	"github.com/fentz26/leaddesk/internal/metrics"
	"github.com/fentz26/leaddesk/internal/models"
	"github.com/fentz26/leaddesk/internal/store"
)

// Actor headers carry the caller's identity.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const maxUploadBytes = 32 << 20

// Server provides the HTTP API for leaddesk.
type Server struct {
	service     *Service
	addr        string
	corsOrigins []string
	server      *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string, corsOrigins []string) *Server {
	return &Server{
		service:     service,
		addr:        addr,
		corsOrigins: corsOrigins,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", HeaderActorID, HeaderActorRole},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.listAgents)
		r.Post("/", s.createAgent)
		r.Put("/{id}/status", s.setAgentStatus)
		r.Delete("/{id}", s.deleteAgent)
	})

	r.Route("/batches", func(r chi.Router) {
		r.Get("/", s.listBatches)
		r.Post("/", s.importBatch)
		r.Post("/{id}/plan", s.planBatch)
		r.Post("/{id}/assign", s.assignBatch)
	})

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", s.listLeads)
		r.Get("/{id}", s.getLead)
		r.Post("/{id}/outcome", s.recordOutcome)
		r.Post("/{id}/details", s.saveDetails)
		r.Get("/{id}/suggestions", s.suggestProjects)
	})

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", s.listProjects)
		r.Post("/", s.createProject)
		r.Get("/{id}", s.getProject)
		r.Put("/{id}", s.updateProject)
	})

	r.Route("/site-visits", func(r chi.Router) {
		r.Get("/", s.listSiteVisits)
		r.Post("/", s.scheduleSiteVisit)
		r.Put("/{id}", s.updateSiteVisit)
	})

	r.Route("/callbacks", func(r chi.Router) {
		r.Get("/", s.listCallbacks)
		r.Post("/", s.createCallback)
		r.Put("/{id}", s.updateCallback)
		r.Post("/{id}/done", s.completeCallback)
		r.Post("/{id}/cancel", s.cancelCallback)
	})

	r.Get("/stats", s.stats)
	r.Get("/reports/{kind}", s.report)
	r.Get("/decisions", s.listDecisions)

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	zap.L().Info("starting leaddesk server", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, allocation.ErrInvalidRequest),
		errors.Is(err, importer.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, allocation.ErrOverAssignment),
		errors.Is(err, assignment.ErrIneligibleTarget),
		errors.Is(err, store.ErrAgentUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assignment.ErrShortBatch),
		errors.Is(err, store.ErrLeadAlreadyAssigned),
		errors.Is(err, store.ErrDuplicateHandle):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func actorFrom(r *http.Request) Actor {
	return Actor{
		ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
		Role: models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createAgentRequest struct {
	Handle string      `json:"handle"`
	Role   models.Role `json:"role"`
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decode(w, r, &req) {
		return
	}
	agent, err := s.service.CreateAgent(r.Context(), actorFrom(r), req.Handle, req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agents, err := s.service.ListAgents(r.Context(), models.Role(q.Get("role")), models.AgentStatus(q.Get("status")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

type agentStatusRequest struct {
	Status models.AgentStatus `json:"status"`
}

func (s *Server) setAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req agentStatusRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.service.SetAgentStatus(r.Context(), actorFrom(r), id, req.Status); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}

func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	released, err := s.service.DeleteAgent(r.Context(), actorFrom(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "released_leads": released})
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.service.ListBatches(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if batches == nil {
		batches = []models.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// importBatch accepts a multipart upload with a "file" part and an optional
// "auto_assign" field.
func (s *Server) importBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with a file")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	rows, err := importer.ReadUpload(header.Filename, data, importer.DefaultOptions())
	if err != nil {
		if errors.Is(err, importer.ErrUnsupportedFormat) {
			s.fail(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, "could not parse file: "+err.Error())
		return
	}

	autoAssign, _ := strconv.ParseBool(r.FormValue("auto_assign"))
	res, err := s.service.ImportBatch(r.Context(), actorFrom(r), header.Filename, rows, autoAssign)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type planRequest struct {
	Mode        string               `json:"mode,omitempty"`
	Assignments []allocation.Request `json:"assignments"`
	Role        models.Role          `json:"role,omitempty"`
}

func (s *Server) planBatch(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decode(w, r, &req) {
		return
	}
	plan, err := s.service.PreviewAssignment(r.Context(), chi.URLParam(r, "id"), req.Mode, req.Assignments)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) assignBatch(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.service.AssignBatch(r.Context(), actorFrom(r), AssignRequest{
		BatchID:     chi.URLParam(r, "id"),
		Mode:        req.Mode,
		Assignments: req.Assignments,
		Role:        req.Role,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.LeadFilter{
		AssignedTo: q.Get("assigned_to"),
		BatchID:    q.Get("batch_id"),
		Search:     strings.TrimSpace(q.Get("q")),
		Limit:      queryInt(r, "limit", 0),
	}
	for _, st := range strings.Split(q.Get("stage"), ",") {
		if st = strings.TrimSpace(st); st != "" {
			f.Stages = append(f.Stages, st)
		}
	}
	f.Unassigned, _ = strconv.ParseBool(q.Get("unassigned"))
	if st := q.Get("status"); st != "" {
		status, ok := models.ParseLeadStatus(st)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status "+st)
			return
		}
		f.Status = status
	}

	leads, err := s.service.ListLeads(r.Context(), actorFrom(r), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if leads == nil {
		leads = []models.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.service.GetLead(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type outcomeRequest struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) recordOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if !decode(w, r, &req) {
		return
	}
	note, err := s.service.RecordCallOutcome(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Connected, req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) saveDetails(w http.ResponseWriter, r *http.Request) {
	var req LeadDetailsInput
	if !decode(w, r, &req) {
		return
	}
	note, err := s.service.SaveLeadDetails(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) suggestProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.SuggestProjects(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req models.Project
	if !decode(w, r, &req) {
		return
	}
	p, err := s.service.CreateProject(r.Context(), actorFrom(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.ListProjects(r.Context(), actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetProject(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectUpdate
	if !decode(w, r, &req) {
		return
	}
	p, err := s.service.UpdateProject(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type siteVisitRequest struct {
	LeadID    string `json:"lead_id"`
	ProjectID string `json:"project_id"`
	VisitDate string `json:"visit_date"`
	Notes     string `json:"notes,omitempty"`
}

func (s *Server) scheduleSiteVisit(w http.ResponseWriter, r *http.Request) {
	var req siteVisitRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := s.service.ScheduleSiteVisit(r.Context(), actorFrom(r), req.LeadID, req.ProjectID, req.VisitDate, req.Notes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) listSiteVisits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	visits, err := s.service.ListSiteVisits(r.Context(), actorFrom(r), SiteVisitQuery{
		Date:    q.Get("date"),
		Scope:   q.Get("scope"),
		AgentID: q.Get("agent_id"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if visits == nil {
		visits = []models.SiteVisit{}
	}
	writeJSON(w, http.StatusOK, visits)
}

func (s *Server) updateSiteVisit(w http.ResponseWriter, r *http.Request) {
	var req SiteVisitUpdate
	if !decode(w, r, &req) {
		return
	}
	v, err := s.service.UpdateSiteVisit(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type callbackRequest struct {
	LeadID  string    `json:"lead_id"`
	AgentID string    `json:"agent_id,omitempty"`
	DueAt   time.Time `json:"due_at"`
	Note    string    `json:"note,omitempty"`
}

func (s *Server) createCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !decode(w, r, &req) {
		return
	}
	cb, err := s.service.CreateCallback(r.Context(), actorFrom(r), req.LeadID, req.AgentID, req.DueAt, req.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cb)
}

func (s *Server) listCallbacks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := models.CallbackStatus(q.Get("status"))
	switch status {
	case "":
		status = models.CallbackPending
	case "all":
		status = ""
	}
	callbacks, err := s.service.ListCallbacks(r.Context(), actorFrom(r), q.Get("agent_id"), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if callbacks == nil {
		callbacks = []models.Callback{}
	}
	writeJSON(w, http.StatusOK, callbacks)
}

func (s *Server) updateCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackUpdate
	if !decode(w, r, &req) {
		return
	}
	cb, err := s.service.UpdateCallback(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cb)
}

func (s *Server) completeCallback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.CompleteCallback(r.Context(), actorFrom(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(models.CallbackDone)})
}

func (s *Server) cancelCallback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.CancelCallback(r.Context(), actorFrom(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(models.CallbackCanceled)})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Stats(r.Context(), actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// report streams a date-range report as an attachment; ?format= picks
// xlsx (default), csv or json.
func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := strings.ToLower(q.Get("format"))
	switch format {
	case "", formatter.FormatXLSX, formatter.FormatCSV, formatter.FormatJSON:
	default:
		writeError(w, http.StatusBadRequest, "unknown format "+format)
		return
	}

	rep, err := s.service.Report(r.Context(), actorFrom(r), chi.URLParam(r, "kind"), q.Get("start"), q.Get("end"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := formatter.WriteReport(&buf, rep, format); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", formatter.ReportContentType(format))
	w.Header().Set("Content-Disposition", "attachment; filename="+formatter.ReportFilename(rep, format))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.Decisions(r.Context(), actorFrom(r), r.URL.Query().Get("subject_id"), queryInt(r, "limit", 50))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
