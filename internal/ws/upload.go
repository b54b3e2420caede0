package ws

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxUploadBytes bounds a single media upload (spec.md names media as a
// thin, non-core collaborator — this is intentionally conservative).
const maxUploadBytes = 8 << 20 // 8 MiB

// uploadResponse matches send_media's payload shape exactly so a client can
// chain upload -> send_media without reshaping anything.
type uploadResponse struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// handleMediaUpload accepts a multipart/form-data "file" field, validates
// its content-type is image/* or video/*, and writes it under uploadDir
// (SPEC_FULL.md §11). This is the minimal real version of the media upload
// collaborator spec.md names but leaves external.
func (s *Server) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "upload too large or malformed", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	var kind string
	switch {
	case strings.HasPrefix(contentType, "image/"):
		kind = "image"
	case strings.HasPrefix(contentType, "video/"):
		kind = "video"
	default:
		http.Error(w, "unsupported content type, must be image/* or video/*", http.StatusUnsupportedMediaType)
		return
	}

	uploadDir := s.uploadDir
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		log.Printf("ws: upload mkdir failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	name := uuid.New().String() + filepath.Ext(header.Filename)
	destPath := filepath.Join(uploadDir, name)

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		log.Printf("ws: upload create failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer dest.Close()

	written, err := io.Copy(dest, file)
	if err != nil {
		log.Printf("ws: upload write failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := uploadResponse{
		URL:  fmt.Sprintf("/uploads/%s", name),
		Kind: kind,
		Name: header.Filename,
		Size: written,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}
