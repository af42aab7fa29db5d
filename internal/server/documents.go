package server

import (
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	ferrors "github.com/figurechat/figurechat/internal/errors"
	"github.com/figurechat/figurechat/internal/ingest"
)

// handleUploadDocuments ingests a multipart batch, streaming progress as
// SSE. Per-file failures become file_error events; the batch continues.
func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	figureID := r.PathValue("id")
	if _, err := s.figures.Get(figureID); err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxRequestBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, ferrors.Validation("expected multipart/form-data: "+err.Error()))
		return
	}

	files, err := readUploadParts(reader, s.cfg.Ingest.MaxFileBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(files) == 0 {
		writeError(w, ferrors.Validation("no files in upload"))
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}

	emit := func(ev ingest.Event) {
		if err := sse.Send(ev.Type, ev); err != nil {
			slog.Debug("client left during upload stream", slog.String("error", err.Error()))
		}
	}

	if err := s.ingestor.Ingest(r.Context(), figureID, files, emit); err != nil {
		// Headers are already sent; the error has to travel as an event.
		_ = sse.Send(ingest.EventFileError, ingest.Event{
			Type:  ingest.EventFileError,
			Error: err.Error(),
		})
	}
}

// readUploadParts buffers the multipart files. Individual oversized files
// are kept (with their size) so ingestion can report them as file-scoped
// errors rather than rejecting the batch.
func readUploadParts(reader *multipart.Reader, maxFileBytes int64) ([]ingest.File, error) {
	var files []ingest.File

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ferrors.Validation("reading multipart body: " + err.Error())
		}

		if part.FileName() == "" {
			part.Close()
			continue
		}

		// Read one byte past the limit so oversized files are detectable
		// without buffering them whole.
		data, err := io.ReadAll(io.LimitReader(part, maxFileBytes+1))
		part.Close()
		if err != nil {
			return nil, ferrors.Validation("reading upload: " + err.Error())
		}

		files = append(files, ingest.File{
			Name: part.FileName(),
			Type: typeFromName(part.FileName()),
			Data: data,
		})
	}

	return files, nil
}

func typeFromName(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
