package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/maauso/clipforge-api/internal/captions"
	"github.com/maauso/clipforge-api/internal/job"
	"github.com/maauso/clipforge-api/internal/layout"
	"github.com/maauso/clipforge-api/internal/raster"
	"github.com/maauso/clipforge-api/internal/storage"
	"github.com/maauso/clipforge-api/internal/template"
	"github.com/maauso/clipforge-api/internal/timecode"
)

const maxSRTBytes = 1 << 20

// Service is the compose pipeline as seen by the HTTP layer.
type Service interface {
	Compose(ctx context.Context, in job.ComposeInput, progress func(percent float64)) (job.ComposeResult, error)
	CreateJob(ctx context.Context, in job.ComposeInput) (*job.Job, error)
	ProcessExistingJob(ctx context.Context, jobID string) error
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context) ([]*job.Job, error)
	ExtractAudio(ctx context.Context, in job.AudioInput) (storage.Published, error)
}

// TemplateLister lists the available templates.
type TemplateLister interface {
	List() []template.Template
}

// OutputResolver maps a published file name to its local path.
type OutputResolver interface {
	ResolveOutput(name string) (string, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            Service
	templates          TemplateLister
	outputs            OutputResolver
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only stores the queued job.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithOutputs serves local outputs under /videos/{name}.
func WithOutputs(outputs OutputResolver) HandlerOption {
	return func(h *Handlers) {
		h.outputs = outputs
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service Service, templates TemplateLister, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		templates:          templates,
		validator:          newValidator(),
		logger:             logger,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// newValidator registers the custom tags used by the request DTOs.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
		_, err := timecode.ParseStrict(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("clipcolor", func(fl validator.FieldLevel) bool {
		_, err := raster.ParseColor(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("aspect", func(fl validator.FieldLevel) bool {
		_, err := layout.ParseAspectRatio(fl.Field().String())
		return err == nil
	})
	return v
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GenerateVideo handles POST /api/generate-video. The clip is rendered
// before the response is written.
func (h *Handlers) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	res, err := h.service.Compose(r.Context(), req.ToInput(), nil)
	if err != nil {
		h.logger.Error("video generation failed", slog.String("error", err.Error()))
		if errors.Is(err, job.ErrInvalidInput) {
			writeErrorDetails(w, http.StatusBadRequest, "Invalid request", err.Error(), "VALIDATION_ERROR")
			return
		}
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to generate video", job.Details(err), "GENERATION_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, GenerateVideoResponse{Success: true, VideoURL: res.VideoURL})
}

// CreateJob handles POST /api/jobs. The job runs in the background.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	created, err := h.service.CreateJob(r.Context(), req.ToInput())
	if err != nil {
		if errors.Is(err, job.ErrInvalidInput) {
			writeErrorDetails(w, http.StatusBadRequest, "Invalid request", err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create job", "INTERNAL_ERROR")
		return
	}

	if h.enableAsyncProcess {
		// The job outlives the request.
		go func(ctx context.Context, jobID string) {
			if err := h.service.ProcessExistingJob(ctx, jobID); err != nil {
				h.logger.Error("background job failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), created.ID)
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.GetStatus()),
	})
}

// GetJob handles GET /api/jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_ID")
		return
	}

	j, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(j))
}

// ListJobs handles GET /api/jobs.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
		return
	}
	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImportCaptions handles POST /api/captions/import with an SRT body.
func (h *Handlers) ImportCaptions(w http.ResponseWriter, r *http.Request) {
	parsed, err := captions.ParseSRT(http.MaxBytesReader(w, r.Body, maxSRTBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "subtitle file too large", "TOO_LARGE")
		case errors.Is(err, captions.ErrNoCaptions):
			writeErrorDetails(w, http.StatusBadRequest, "Invalid subtitle file", err.Error(), "NO_CAPTIONS")
		default:
			writeErrorDetails(w, http.StatusBadRequest, "Invalid subtitle file", err.Error(), "INVALID_SRT")
		}
		return
	}
	writeJSON(w, http.StatusOK, CaptionsResponse{Captions: parsed})
}

// AnalyzeCaptions handles POST /api/captions/analyze.
func (h *Handlers) AnalyzeCaptions(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeCaptionsRequest
	if !h.decode(w, r, &req) || !checkTimes(w, req.StartTime, req.EndTime) {
		return
	}
	clip := GenerateVideoRequest{StartTime: req.StartTime, EndTime: req.EndTime}.ToInput().Clip()
	writeJSON(w, http.StatusOK, captions.Analyze(req.Captions, clip))
}

// ExtractAudio handles POST /api/extract-audio.
func (h *Handlers) ExtractAudio(w http.ResponseWriter, r *http.Request) {
	var req ExtractAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if strings.TrimSpace(req.YoutubeURL) == "" || req.StartTime == nil || req.EndTime == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: youtubeUrl, startTime, endTime", "VALIDATION_ERROR")
		return
	}
	if !checkTimes(w, *req.StartTime, *req.EndTime) {
		return
	}

	pub, err := h.service.ExtractAudio(r.Context(), job.AudioInput{
		SourceURL: strings.TrimSpace(req.YoutubeURL),
		Start:     req.StartTime.Value,
		End:       req.EndTime.Value,
	})
	if err != nil {
		h.logger.Error("audio extraction failed", slog.String("error", err.Error()))
		if errors.Is(err, job.ErrInvalidInput) {
			writeErrorDetails(w, http.StatusBadRequest, "Invalid request", err.Error(), "VALIDATION_ERROR")
			return
		}
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to extract audio", job.Details(err), "EXTRACTION_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, ExtractAudioResponse{Success: true, AudioURL: pub.URL})
}

// Templates handles GET /api/templates.
func (h *Handlers) Templates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TemplatesResponse{Templates: h.templates.List()})
}

// Schema handles GET /api/schema/generate-video.
func (h *Handlers) Schema(w http.ResponseWriter, r *http.Request) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	writeJSON(w, http.StatusOK, reflector.Reflect(&GenerateVideoRequest{}))
}

// Video handles GET /videos/{name} for outputs kept on local disk.
func (h *Handlers) Video(w http.ResponseWriter, r *http.Request) {
	if h.outputs == nil {
		writeError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
		return
	}
	path, err := h.outputs.ResolveOutput(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Handlers) decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (GenerateVideoRequest, bool) {
	var req GenerateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return req, false
	}
	if strings.TrimSpace(req.YoutubeURL) == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: youtubeUrl", "VALIDATION_ERROR")
		return req, false
	}
	if !checkTimes(w, req.StartTime, req.EndTime) {
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed", slog.String("error", err.Error()))
		writeErrorDetails(w, http.StatusBadRequest, "Invalid request", err.Error(), "VALIDATION_ERROR")
		return req, false
	}
	return req, true
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Invalid request", err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeErrorDetails(w http.ResponseWriter, status int, message, details, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details, Code: code})
}

// checkTimes writes a 400 and reports false when the time range is bad.
func checkTimes(w http.ResponseWriter, start, end Seconds) bool {
	if err := CheckTimeRange(start, end); err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Invalid time range", err.Error(), "INVALID_TIME_RANGE")
		return false
	}
	return true
}
