package httphandler

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/ericfisherdev/classbuild/internal/application"
	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// maxPayloadBytes matches the largest webhook payload GitHub delivers.
const maxPayloadBytes = 25 << 20

// healthTimeout bounds each component check of the health endpoint.
const healthTimeout = 2 * time.Second

// Pinger is a dependency whose reachability is reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the application services served over HTTP. Reconcile may be
// nil when no source-host token is configured; Metrics may be nil to omit the
// /metrics route.
type Services struct {
	Ingest     *application.IngestService
	Completion *application.CompletionService
	Reconcile  *application.ReconcileService
	Progress   *application.ProgressService
	History    *application.HistoryService
	Metrics    http.Handler
	Health     map[string]Pinger
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	svc        Services
	adminToken string
	logger     *slog.Logger
}

// NewHandler creates a Handler. adminToken guards the reconciliation routes
// when non-empty.
func NewHandler(svc Services, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, adminToken: adminToken, logger: logger}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	const project = "/api/v1/classrooms/{classroom}/projects/{project}"
	const student = project + "/students/{userID}"

	mux.HandleFunc("POST /api/v1/classrooms/{classroom}/push", h.RepositoryPush)
	mux.HandleFunc("POST /api/v1/builds/completed", h.BuildCompleted)

	mux.Handle("POST "+project+"/reconcile", adminMiddleware(h.adminToken, http.HandlerFunc(h.ReconcileProject)))
	mux.Handle("POST "+student+"/reconcile", adminMiddleware(h.adminToken, http.HandlerFunc(h.ReconcileStudent)))
	mux.Handle("GET /api/v1/reconcile/schedules", adminMiddleware(h.adminToken, http.HandlerFunc(h.ListSchedules)))

	mux.HandleFunc("GET "+student+"/progress", h.GetProgress)
	mux.HandleFunc("GET "+student+"/builds", h.ListUserBuilds)
	mux.HandleFunc("GET "+student+"/builds/latest", h.GetLatestBuild)
	mux.HandleFunc("GET "+student+"/test-counts", h.GetTestCounts)
	mux.HandleFunc("GET "+project+"/sections/{section}/builds", h.ListSectionBuilds)
	mux.HandleFunc("GET "+project+"/builds/{buildID}", h.GetBuild)
	mux.HandleFunc("GET "+project+"/estimated-duration", h.GetEstimatedDuration)

	mux.HandleFunc("GET /api/v1/health", h.Health)
	if h.svc.Metrics != nil {
		mux.Handle("GET /metrics", h.svc.Metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// RepositoryPush receives a GitHub webhook delivery for a classroom. Push
// events create and dispatch commits; ping events only verify the signature.
func (h *Handler) RepositoryPush(w http.ResponseWriter, r *http.Request) {
	classroom := r.PathValue("classroom")

	event := r.Header.Get("X-GitHub-Event")
	if event != "push" && event != "ping" {
		writeError(w, http.StatusBadRequest, "unsupported event type")
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		signature = r.Header.Get("X-Hub-Signature")
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	if event == "ping" {
		if err := h.svc.Ingest.VerifyDelivery(payload, signature); err != nil {
			h.logger.Warn("rejected webhook ping", "classroom", classroom)
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	report, err := h.svc.Ingest.OnRepositoryPush(r.Context(), classroom, payload, signature)
	switch {
	case errors.Is(err, application.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	case errors.Is(err, application.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, "malformed push payload")
		return
	case isNotFound(err):
		h.logger.Warn("push for unknown repository", "classroom", classroom, "error", err)
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to process push",
			"classroom", classroom,
			"created", report.Created,
			"failed", report.Failed,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("push processed",
		"classroom", classroom,
		"created", report.Created,
		"duplicates", report.Duplicates,
	)
	w.WriteHeader(http.StatusNoContent)
}

// BuildCompleted receives a build result from a job queue worker. Duplicate
// deliveries and unknown tokens are acknowledged so workers do not retry them.
func (h *Handler) BuildCompleted(w http.ResponseWriter, r *http.Request) {
	var result model.JobResult
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.svc.Completion.OnBuildCompleted(r.Context(), result)
	if err != nil {
		if errors.Is(err, model.ErrUnexpectedJobStatus) {
			h.logger.Error("build callback violated the job contract",
				"status", result.Status,
				"error", err,
			)
		} else {
			h.logger.Error("failed to record build", "error", err)
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Debug("build callback handled", "outcome", outcome.String())
	w.WriteHeader(http.StatusNoContent)
}

// ReconcileProject creates and dispatches missed commits for every student
// of a project.
func (h *Handler) ReconcileProject(w http.ResponseWriter, r *http.Request) {
	if h.svc.Reconcile == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciliation is disabled")
		return
	}

	classroom, project := r.PathValue("classroom"), r.PathValue("project")

	found, report, err := h.svc.Reconcile.ProcessMissedCommitsForAllStudents(r.Context(), classroom, project)
	h.writeReconcile(w, found, report, err, "classroom", classroom, "project", project)
}

// ReconcileStudent creates and dispatches missed commits for one student.
func (h *Handler) ReconcileStudent(w http.ResponseWriter, r *http.Request) {
	if h.svc.Reconcile == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciliation is disabled")
		return
	}

	userID, ok := parseID(w, r, "userID")
	if !ok {
		return
	}
	classroom, project := r.PathValue("classroom"), r.PathValue("project")

	found, report, err := h.svc.Reconcile.ProcessMissedCommitsForStudent(r.Context(), classroom, project, userID)
	h.writeReconcile(w, found, report, err, "classroom", classroom, "project", project, "user_id", userID)
}

func (h *Handler) writeReconcile(w http.ResponseWriter, found bool, report application.ProcessReport, err error, attrs ...any) {
	if !found && err == nil {
		writeError(w, http.StatusNotFound, "project or student not found")
		return
	}

	resp := toReconcileResponse(report)
	if err != nil {
		h.logger.Error("reconciliation failed", append(attrs, "error", err)...)
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ScheduleResponse is the sweep schedule of one project.
type ScheduleResponse struct {
	ProjectID int64  `json:"project_id"`
	Tier      string `json:"tier"`
	LastSwept string `json:"last_swept"`
	NextSweep string `json:"next_sweep"`
}

// ListSchedules returns the reconciliation sweep schedule of each project.
func (h *Handler) ListSchedules(w http.ResponseWriter, _ *http.Request) {
	if h.svc.Reconcile == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciliation is disabled")
		return
	}

	schedules := h.svc.Reconcile.GetSchedules()
	resp := make([]ScheduleResponse, 0, len(schedules))
	for id, s := range schedules {
		resp = append(resp, ScheduleResponse{
			ProjectID: id,
			Tier:      s.Tier.String(),
			LastSwept: formatTime(s.LastSwept),
			NextSweep: formatTime(s.NextSweep),
		})
	}
	slices.SortFunc(resp, func(a, b ScheduleResponse) int { return cmp.Compare(a.ProjectID, b.ProjectID) })

	writeJSON(w, http.StatusOK, resp)
}

// GetProgress returns the progress of the student's most recent build. It
// responds 204 when the student has not pushed anything yet.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "userID")
	if !ok {
		return
	}

	progress, err := h.svc.Progress.MonitorProgress(r.Context(), r.PathValue("classroom"), r.PathValue("project"), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get build progress")
		return
	}
	if progress == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, toProgressResponse(*progress))
}

// ListUserBuilds returns the student's built commits, newest first.
func (h *Handler) ListUserBuilds(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "userID")
	if !ok {
		return
	}

	commits, err := h.svc.History.UserBuilds(r.Context(), r.PathValue("classroom"), r.PathValue("project"), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list builds")
		return
	}

	resp := make([]CommitResponse, 0, len(commits))
	for _, c := range commits {
		resp = append(resp, toCommitResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetLatestBuild returns the student's newest commit with its build, or an
// estimate of the remaining wait. It responds 204 when there are no commits.
func (h *Handler) GetLatestBuild(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "userID")
	if !ok {
		return
	}

	result, err := h.svc.History.LatestBuildResult(r.Context(), r.PathValue("classroom"), r.PathValue("project"), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get latest build")
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, toLatestBuildResponse(*result))
}

// GetTestCounts returns pass/fail counts of the student's completed builds.
func (h *Handler) GetTestCounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "userID")
	if !ok {
		return
	}

	counts, err := h.svc.History.BuildTestCounts(r.Context(), r.PathValue("classroom"), r.PathValue("project"), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get test counts")
		return
	}

	resp := make([]TestCountResponse, 0, len(counts))
	for _, c := range counts {
		resp = append(resp, toTestCountResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListSectionBuilds returns the latest build of each student in a section.
func (h *Handler) ListSectionBuilds(w http.ResponseWriter, r *http.Request) {
	builds, err := h.svc.History.SectionBuilds(r.Context(), r.PathValue("classroom"), r.PathValue("project"), r.PathValue("section"))
	if err != nil {
		h.writeServiceError(w, err, "failed to list section builds")
		return
	}

	resp := make([]StudentBuildResponse, 0, len(builds))
	for _, b := range builds {
		resp = append(resp, toStudentBuildResponse(b))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetBuild returns a single build of the project.
func (h *Handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	buildID, ok := parseID(w, r, "buildID")
	if !ok {
		return
	}

	detail, err := h.svc.History.BuildDetail(r.Context(), r.PathValue("classroom"), r.PathValue("project"), buildID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get build")
		return
	}

	writeJSON(w, http.StatusOK, toBuildDetailResponse(*detail))
}

// EstimatedDurationResponse is the expected duration of a new build.
type EstimatedDurationResponse struct {
	Seconds float64 `json:"seconds"`
}

// GetEstimatedDuration returns how long a new build of the project is
// expected to take.
func (h *Handler) GetEstimatedDuration(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.History.EstimatedDuration(r.Context(), r.PathValue("classroom"), r.PathValue("project"))
	if err != nil {
		h.writeServiceError(w, err, "failed to estimate build duration")
		return
	}

	writeJSON(w, http.StatusOK, EstimatedDurationResponse{Seconds: d.Seconds()})
}

// Health reports whether the service and its dependencies are reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Time: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK

	if len(h.svc.Health) > 0 {
		resp.Components = make(map[string]string, len(h.svc.Health))
		for name, p := range h.svc.Health {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := p.Ping(ctx)
			cancel()

			if err != nil {
				h.logger.Warn("health check failed", "component", name, "error", err)
				resp.Components[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}

// writeServiceError maps application errors to responses: missing entities
// are 404, everything else is logged and reported as 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	if isNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func isNotFound(err error) bool {
	return errors.Is(err, application.ErrProjectNotFound) ||
		errors.Is(err, application.ErrStudentNotFound) ||
		errors.Is(err, application.ErrSectionNotFound) ||
		errors.Is(err, application.ErrBuildNotFound)
}

// parseID reads a positive integer path value, writing a 400 response when
// it is malformed.
func parseID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
