package main

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/guido-cesarano/taskhub/pkg/infra"
	"github.com/guido-cesarano/taskhub/pkg/logger"
	"github.com/guido-cesarano/taskhub/pkg/service"
	"github.com/guido-cesarano/taskhub/pkg/tasks"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// application bundles what the handlers need.
type application struct {
	tasks   *service.TaskService
	uploads *service.UploadService
	// report returns the latest bootstrap report for /health.
	report  func() infra.Report
	apiKey  string
	maxBody int64
}

// authMiddleware enforces API Key authentication when a key is configured.
func authMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// If no key is configured, allow all (dev mode)
			if requiredKey != "" && r.Header.Get("X-API-Key") != requiredKey {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// enableCORS adds CORS headers and answers preflight requests.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request on the global logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// setupRouter configures the HTTP handlers. CORS runs before routing so
// preflight requests never reach auth.
func setupRouter(app *application) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", app.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(app.apiKey))
		r.Post("/tasks", app.createTask)
		r.Post("/upload", app.upload)
	})

	return r
}

func (app *application) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"bootstrap": app.report().Status(),
	})
}

func (app *application) createTask(w http.ResponseWriter, r *http.Request) {
	var in tasks.Input
	body := http.MaxBytesReader(w, r.Body, app.maxBody)
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task, err := app.tasks.CreateTask(r.Context(), in)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
			return
		}
		logger.Log.Error().Err(err).Msg("Task creation failed")
		writeError(w, http.StatusInternalServerError, "Task creation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "task": task})
}

// upload accepts a multipart form with an "image" file field, or a JSON
// body {"base64": "..."} optionally carrying a data URI prefix.
func (app *application) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.maxBody)

	in, err := app.readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload request", err)
		return
	}

	res, err := app.uploads.UploadImage(r.Context(), in)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			if verr.Field == "image" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No image provided"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
			return
		}
		logger.Log.Error().Err(err).Msg("Upload failed")
		writeError(w, http.StatusInternalServerError, "Upload failed", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (app *application) readUpload(r *http.Request) (service.UploadInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(app.maxBody); err != nil {
			return service.UploadInput{}, err
		}
		file, header, err := r.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return service.UploadInput{}, nil
		}
		if err != nil {
			return service.UploadInput{}, err
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return service.UploadInput{}, err
		}
		return service.UploadInput{Data: data, ContentType: header.Header.Get("Content-Type")}, nil
	}

	var req struct {
		Base64 string `json:"base64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return service.UploadInput{}, err
	}
	return service.UploadInput{Base64: req.Base64}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	writeJSON(w, status, map[string]string{"error": msg, "details": err.Error()})
}
