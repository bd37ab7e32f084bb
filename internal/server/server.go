package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mediaconv/internal/common"
	"mediaconv/internal/config"
	"mediaconv/internal/convert"
	"mediaconv/internal/jobs"
	"mediaconv/internal/storage"
)

// Service exposes the orchestrator over HTTP: upload + convert intake,
// job status polling and artifact downloads.
type Service struct {
	Log   *slog.Logger
	Cfg   *config.Config
	Jobs  *jobs.Service
	Files *storage.Area
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc(http.MethodPost+" "+common.PathConvert, svc.withBodyLimit(svc.handleConvert))
	mux.HandleFunc(http.MethodGet+" "+common.PathJobs, svc.handleListJobs)
	mux.HandleFunc(http.MethodGet+" "+common.PathJobs+"/{id}", svc.handleGetJob)
	mux.HandleFunc(http.MethodGet+" "+common.PathFiles+"/{name}", svc.handleDownload)

	var handler http.Handler = mux
	if svc.Cfg.Server.RateLimit > 0 {
		limiter := rate.NewLimiter(rate.Limit(svc.Cfg.Server.RateLimit), svc.Cfg.Server.RateBurst)
		handler = rateLimitMiddleware(handler, limiter)
	}
	handler = loggingMiddleware(recoveryMiddleware(handler), svc.Log)

	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

func (svc *Service) withBodyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if max := safeInt64(svc.Cfg.Server.MaxUploadSize); max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	}
}

// apiResponse is the JSON envelope shared by all endpoints.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type uploadData struct {
	JobID     string `json:"job_id"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	StatusURL string `json:"status_url"`
}

func (svc *Service) handleConvert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(safeInt64(svc.Cfg.Server.MaxUploadSize)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	uploaded := headers[0]

	mediaType := convert.MediaType(strings.TrimSpace(r.FormValue("type")))
	targetFormat := strings.TrimSpace(r.FormValue("targetFormat"))
	if mediaType == "" || targetFormat == "" {
		writeError(w, http.StatusBadRequest, "missing targetFormat or type")
		return
	}
	if !mediaType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown media type: "+string(mediaType))
		return
	}

	inputFile, err := svc.Files.SaveUpload(uploaded, safeInt64(svc.Cfg.Server.MaxUploadSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "upload failed: "+err.Error())
		return
	}

	job, err := svc.Jobs.Enqueue(mediaType, inputFile, targetFormat)
	if err != nil {
		// The record was rolled back; drop the orphaned upload too.
		if p, perr := svc.Files.Path(inputFile); perr == nil {
			_ = os.Remove(p)
		}
		if errors.Is(err, jobs.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "queue full, try later")
			return
		}
		svc.Log.Error("enqueue failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, apiResponse{
		Success: true,
		Data: uploadData{
			JobID:     job.ID,
			Filename:  uploaded.Filename,
			Size:      uploaded.Size,
			StatusURL: common.PathJobs + "/" + job.ID,
		},
	})
}

func (svc *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := svc.Jobs.GetStatus(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		svc.Log.Error("get job", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get job status")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: job})
}

func (svc *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	all, err := svc.Jobs.ListJobs()
	if err != nil {
		svc.Log.Error("list jobs", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if all == nil {
		all = []*jobs.Job{}
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: all})
}

func (svc *Service) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	path, err := svc.Files.Path(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", storage.ContentType(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	// Fallback to a discard logger if none provided to avoid nil deref in tests or minimal setups.
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func rateLimitMiddleware(next http.Handler, limiter *rate.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
