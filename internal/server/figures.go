package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	ferrors "github.com/figurechat/figurechat/internal/errors"
)

type figureRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Persona     string `json:"persona"`
}

func (s *Server) handleListFigures(w http.ResponseWriter, r *http.Request) {
	figures, err := s.figures.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"figures": figures})
}

func (s *Server) handleCreateFigure(w http.ResponseWriter, r *http.Request) {
	var req figureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	fig, err := s.figures.Create(req.ID, req.Name, req.Description, req.Persona)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fig)
}

func (s *Server) handleGetFigure(w http.ResponseWriter, r *http.Request) {
	fig, err := s.figures.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fig)
}

func (s *Server) handleUpdateFigure(w http.ResponseWriter, r *http.Request) {
	var req figureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	fig, err := s.figures.Update(r.PathValue("id"), req.Name, req.Description, req.Persona)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fig)
}

func (s *Server) handleDeleteFigure(w http.ResponseWriter, r *http.Request) {
	if err := s.figures.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleClearFigure(w http.ResponseWriter, r *http.Request) {
	if err := s.figures.Clear(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleSyncFigure(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.figures.SyncDocumentCount(id); err != nil {
		writeError(w, err)
		return
	}

	fig, err := s.figures.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fig)
}

// handleFigureImage stores an uploaded portrait and records its path.
func (s *Server) handleFigureImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.figures.Get(id); err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, ferrors.Validation("invalid multipart form: "+err.Error()))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, ferrors.Validation("image field is required"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
	default:
		writeError(w, ferrors.New(ferrors.ErrCodeUnsupportedFileType,
			fmt.Sprintf("unsupported image type %q", ext), nil))
		return
	}

	dir := s.cfg.Paths.FigureImages
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeError(w, err)
		return
	}

	path := filepath.Join(dir, id+ext)
	out, err := os.Create(path)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		writeError(w, err)
		return
	}
	if err := out.Close(); err != nil {
		writeError(w, err)
		return
	}

	// A re-upload under a different extension must not leave the previous
	// portrait behind.
	if stale, err := filepath.Glob(filepath.Join(dir, id+".*")); err == nil {
		for _, old := range stale {
			if old != path {
				os.Remove(old)
			}
		}
	}

	if err := s.figures.SetImage(id, path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"image_path": path})
}
