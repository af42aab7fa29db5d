// Package ingest runs the upload pipeline: extract, chunk, embed, index.
// Errors are file-scoped; one bad file never aborts the batch. The sparse
// index is invalidated once per batch, after the last file.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/figurechat/figurechat/internal/document"
	ferrors "github.com/figurechat/figurechat/internal/errors"
	"github.com/figurechat/figurechat/internal/figure"
	"github.com/figurechat/figurechat/internal/vector"
)

// Event types emitted during ingestion, in document order per file.
const (
	EventFileStart      = "file_start"
	EventChunksCount    = "chunks_count"
	EventChunkProgress  = "chunk_progress"
	EventFileComplete   = "file_complete"
	EventFileError      = "file_error"
	EventUploadComplete = "upload_complete"
)

// Event is one progress notification, streamed to the client as SSE.
type Event struct {
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
	// Chunks is the file's chunk count (chunks_count, file_complete).
	Chunks int `json:"chunks,omitempty"`
	// Done is the number of chunks indexed so far (chunk_progress).
	Done int `json:"done,omitempty"`
	// Files and Failed summarize the batch (upload_complete).
	Files  int    `json:"files,omitempty"`
	Failed int    `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`
}

// File is one upload.
type File struct {
	Name string
	Type string
	Data []byte
}

// Service runs ingestion batches against a figure manager.
type Service struct {
	mgr          *figure.Manager
	chunker      *document.Chunker
	maxFileBytes int64
}

// NewService creates the ingestion service.
func NewService(mgr *figure.Manager, chunker *document.Chunker, maxFileBytes int64) *Service {
	return &Service{mgr: mgr, chunker: chunker, maxFileBytes: maxFileBytes}
}

// Ingest processes the batch for one figure, emitting progress events.
// It returns an error only for batch-level failures (unknown figure,
// cancelled context, failed flush); per-file failures surface as
// file_error events.
func (s *Service) Ingest(ctx context.Context, figureID string, files []File, emit func(Event)) error {
	if emit == nil {
		emit = func(Event) {}
	}

	if _, err := s.mgr.Get(figureID); err != nil {
		return err
	}

	start := time.Now()
	failed := 0
	mutated := false

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		emit(Event{Type: EventFileStart, Filename: f.Name})

		n, err := s.ingestFile(ctx, figureID, f, emit)
		if err != nil {
			failed++
			// Chunks appended before the failure are already live in the
			// collection, so the sparse index must still be invalidated
			// and the store flushed.
			mutated = mutated || n > 0
			slog.Warn("file ingestion failed",
				slog.String("figure_id", figureID),
				slog.String("filename", f.Name),
				slog.String("error", err.Error()))
			emit(Event{Type: EventFileError, Filename: f.Name, Error: err.Error()})
			continue
		}

		mutated = mutated || n > 0
		emit(Event{Type: EventFileComplete, Filename: f.Name, Chunks: n})
	}

	if mutated {
		s.mgr.Invalidate(figureID)
		if err := s.mgr.Flush(figureID); err != nil {
			return err
		}
	}

	slog.Info("upload batch complete",
		slog.String("figure_id", figureID),
		slog.Int("files", len(files)),
		slog.Int("failed", failed),
		slog.Duration("took", time.Since(start)))

	emit(Event{Type: EventUploadComplete, Files: len(files), Failed: failed})
	return nil
}

// ingestFile runs one file through extract, chunk, embed, index.
func (s *Service) ingestFile(ctx context.Context, figureID string, f File, emit func(Event)) (int, error) {
	if s.maxFileBytes > 0 && int64(len(f.Data)) > s.maxFileBytes {
		return 0, ferrors.New(ferrors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s is %d bytes, limit %d", f.Name, len(f.Data), s.maxFileBytes), nil)
	}

	fileType := f.Type
	if fileType == "" {
		fileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
	}
	if !document.SupportedType(fileType) {
		return 0, ferrors.New(ferrors.ErrCodeUnsupportedFileType,
			fmt.Sprintf("unsupported file type %q", fileType), nil)
	}

	text, err := document.ExtractText(f.Data, fileType)
	if err != nil {
		return 0, err
	}

	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		return 0, ferrors.Decode("document produced no chunks", nil)
	}

	emit(Event{Type: EventChunksCount, Filename: f.Name, Chunks: len(chunks)})

	sanitized := sanitizeFilename(f.Name)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		meta := vector.ChunkMetadata{
			Filename:         sanitized,
			OriginalFilename: f.Name,
			FileType:         fileType,
			FileSize:         int64(len(f.Data)),
			TextLength:       utf8.RuneCountInString(text),
			ChunkIndex:       chunk.Index,
			TotalChunks:      chunk.TotalChunks,
			StartChar:        chunk.StartChar,
			EndChar:          chunk.EndChar,
			CharCount:        chunk.CharCount,
		}

		if _, err := s.mgr.AddChunk(ctx, figureID, chunk.Text, meta); err != nil {
			return i, err
		}

		emit(Event{Type: EventChunkProgress, Filename: f.Name, Done: i + 1, Chunks: len(chunks)})
	}

	return len(chunks), nil
}

// sanitizeFilename strips path components and characters unsafe in stored
// names.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
