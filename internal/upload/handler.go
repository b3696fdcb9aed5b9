// Package upload stores message attachments on disk and serves them back
// under stable URLs used as image references.
package upload

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// URLPrefix is where stored attachments are served from.
const URLPrefix = "/uploads/"

var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

type Handler struct {
	dir      string
	maxBytes int64
	log      zerolog.Logger
}

func NewHandler(dir string, maxBytes int64, log zerolog.Logger) (*Handler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Handler{
		dir:      dir,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "upload").Logger(),
	}, nil
}

// Upload accepts one multipart image, stores it under a random name and
// returns the reference URL.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}

	mtype := mimetype.Detect(data)
	if !allowedTypes[mtype.String()] {
		http.Error(w, "unsupported file type", http.StatusUnsupportedMediaType)
		return
	}

	name := uuid.NewString() + mtype.Extension()
	if err := os.WriteFile(filepath.Join(h.dir, name), data, 0o644); err != nil {
		h.log.Error().Err(err).Msg("store attachment failed")
		http.Error(w, "could not store file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"url": URLPrefix + name})
}

// Serve exposes stored attachments.
func (h *Handler) Serve() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(http.Dir(h.dir)))
}
