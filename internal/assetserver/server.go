// Package assetserver serves page assets over HTTP and accepts uploads.
//
// Routes:
//
//	GET|HEAD /assets/{page}/{file}   asset bytes, 404 when missing
//	POST     /upload                 multipart upload, "folder" names the project
//	GET      /healthz
package assetserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/niczy/designtree/internal/assets"
	"github.com/niczy/designtree/internal/editor"
	"github.com/niczy/designtree/internal/schema"
	"github.com/niczy/designtree/internal/storage"
	"github.com/niczy/designtree/internal/upload"
	"github.com/sirupsen/logrus"
)

// DefaultMaxPartSize bounds a single uploaded part.
const DefaultMaxPartSize = 8 << 20

// Server exposes an object store and the editor's upload path.
type Server struct {
	objects     storage.ObjectStore
	editor      *editor.Editor
	validator   *schema.Validator
	log         logrus.FieldLogger
	maxPartSize int64
}

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Validator   *schema.Validator
	Logger      logrus.FieldLogger
	MaxPartSize int64
}

// New creates a server over objects. ed may be nil, in which case uploads are refused.
func New(objects storage.ObjectStore, ed *editor.Editor, opts Options) *Server {
	s := &Server{
		objects:     objects,
		editor:      ed,
		validator:   opts.Validator,
		log:         opts.Logger,
		maxPartSize: opts.MaxPartSize,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.maxPartSize <= 0 {
		s.maxPartSize = DefaultMaxPartSize
	}
	if s.validator == nil {
		s.validator = schema.MustValidator()
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/assets/{page}/{file}", s.assetHandler)
	r.Head("/assets/{page}/{file}", s.assetHandler)
	r.Post("/upload", s.uploadHandler)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"request_id": middleware.GetReqID(r.Context()),
			"duration":   time.Since(start),
		}).Debug("http request")
	})
}

func (s *Server) assetHandler(w http.ResponseWriter, r *http.Request) {
	page, file := chi.URLParam(r, "page"), chi.URLParam(r, "file")
	key := page + "/" + file

	if r.Method == http.MethodHead {
		ok, err := s.objects.Exists(r.Context(), key)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Error("asset lookup failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType(file))
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := s.objects.GetObject(r.Context(), key)
	if errors.Is(err, storage.ErrEntryNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("key", key).Error("asset read failed")
		http.Error(w, "asset read failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType(file))
	_, _ = w.Write(body)
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if s.editor == nil {
		http.Error(w, "uploads are disabled", http.StatusServiceUnavailable)
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form, err := upload.Decode(mr, s.maxPartSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if form.Folder == "" {
		http.Error(w, "folder is required", http.StatusBadRequest)
		return
	}
	if len(form.Structure) > 0 {
		if err := s.validator.ValidateStructure(form.Structure); err != nil {
			s.writeError(w, err)
			return
		}
	}

	keys, err := s.editor.StoreParts(r.Context(), form.Folder, form.Parts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.WithFields(logrus.Fields{"project": form.Folder, "keys": len(keys)}).Info("assets uploaded")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "keys": keys})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, upload.ErrInvalidPartName),
		errors.Is(err, upload.ErrUnknownPage),
		errors.Is(err, upload.ErrNotSVG),
		errors.Is(err, upload.ErrFileCountMismatch),
		errors.Is(err, schema.ErrInvalidDocument):
		code = http.StatusBadRequest
	case errors.Is(err, upload.ErrPartTooLarge):
		code = http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrProjectNotFound):
		code = http.StatusNotFound
	default:
		s.log.WithError(err).Error("upload failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
}

func contentType(file string) string {
	if path.Ext(file) == assets.Ext {
		return "image/svg+xml"
	}
	return "application/octet-stream"
}
