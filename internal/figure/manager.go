package figure

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/figurechat/figurechat/internal/embed"
	ferrors "github.com/figurechat/figurechat/internal/errors"
	"github.com/figurechat/figurechat/internal/textproc"
	"github.com/figurechat/figurechat/internal/vector"
)

const metadataFile = "metadata.json"

// Invalidator drops a figure's sparse index after mutation.
// Satisfied by the search cache; an interface here avoids a package cycle.
type Invalidator interface {
	Invalidate(figureID string)
}

// Manager owns figure metadata and coordinates the per-figure stores.
// Safe for concurrent use.
type Manager struct {
	figuresDir string
	imagesDir  string

	store    *vector.Store
	embedder embed.Embedder
	proc     *textproc.Processor
	inval    Invalidator

	mu sync.RWMutex
}

// NewManager creates a manager over the given directories and stores.
func NewManager(figuresDir, imagesDir string, store *vector.Store, embedder embed.Embedder, proc *textproc.Processor, inval Invalidator) (*Manager, error) {
	for _, dir := range []string{figuresDir, imagesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create figure dir %s: %w", dir, err)
		}
	}
	return &Manager{
		figuresDir: figuresDir,
		imagesDir:  imagesDir,
		store:      store,
		embedder:   embedder,
		proc:       proc,
		inval:      inval,
	}, nil
}

func (m *Manager) figureDir(id string) string {
	return filepath.Join(m.figuresDir, id)
}

func (m *Manager) metadataPath(id string) string {
	return filepath.Join(m.figureDir(id), metadataFile)
}

// Create validates the fields, creates the figure directory, metadata file,
// and an empty vector collection. A validation failure carries the
// field-level error map in the error details.
func (m *Manager) Create(id, name, description, persona string) (*Figure, error) {
	if errs := ValidateFields(id, name, description, persona, false); len(errs) > 0 {
		fe := ferrors.Validation("invalid figure fields")
		fe.Details = errs
		return nil, fe
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.metadataPath(id)); err == nil {
		return nil, ferrors.New(ferrors.ErrCodeFigureExists,
			fmt.Sprintf("figure %q already exists", id), nil)
	}

	now := time.Now().UTC()
	fig := &Figure{
		ID:          id,
		Name:        name,
		Description: description,
		Persona:     persona,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := os.MkdirAll(m.figureDir(id), 0o755); err != nil {
		return nil, fmt.Errorf("create figure dir: %w", err)
	}
	if err := m.saveMetadata(fig); err != nil {
		return nil, err
	}

	if _, err := m.store.Create(id); err != nil {
		// Roll back the metadata so a retry is possible.
		_ = os.RemoveAll(m.figureDir(id))
		return nil, err
	}

	slog.Info("figure created", slog.String("figure_id", id), slog.String("name", name))
	return fig, nil
}

// Get loads one figure's metadata.
func (m *Manager) Get(id string) (*Figure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadMetadata(id)
}

// List returns all figures sorted by id.
func (m *Manager) List() ([]*Figure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.figuresDir)
	if err != nil {
		return nil, fmt.Errorf("read figures dir: %w", err)
	}

	figures := make([]*Figure, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fig, err := m.loadMetadata(entry.Name())
		if err != nil {
			slog.Warn("skipping unreadable figure",
				slog.String("figure_id", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		figures = append(figures, fig)
	}

	sort.Slice(figures, func(i, j int) bool { return figures[i].ID < figures[j].ID })
	return figures, nil
}

// Update rewrites the mutable fields (name, description, persona). The id
// and timestamps are managed here.
func (m *Manager) Update(id, name, description, persona string) (*Figure, error) {
	if errs := ValidateFields(id, name, description, persona, true); len(errs) > 0 {
		fe := ferrors.Validation("invalid figure fields")
		fe.Details = errs
		return nil, fe
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fig, err := m.loadMetadata(id)
	if err != nil {
		return nil, err
	}

	fig.Name = name
	fig.Description = description
	fig.Persona = persona
	fig.UpdatedAt = time.Now().UTC()

	if err := m.saveMetadata(fig); err != nil {
		return nil, err
	}
	return fig, nil
}

// SetImage records the stored portrait path.
func (m *Manager) SetImage(id, imagePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fig, err := m.loadMetadata(id)
	if err != nil {
		return err
	}
	fig.ImagePath = imagePath
	fig.UpdatedAt = time.Now().UTC()
	return m.saveMetadata(fig)
}

// Delete removes the figure entirely: collection, sparse index, portrait,
// and metadata directory. Every step is attempted even when an earlier one
// fails; only a failed directory removal is reported.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fig, err := m.loadMetadata(id)
	if err != nil {
		return err
	}

	if err := m.store.Drop(id); err != nil {
		slog.Warn("dropping collection failed",
			slog.String("figure_id", id),
			slog.String("error", err.Error()))
	}

	m.inval.Invalidate(id)

	if fig.ImagePath != "" {
		if err := os.Remove(fig.ImagePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("removing figure image failed",
				slog.String("figure_id", id),
				slog.String("error", err.Error()))
		}
	}

	if err := os.RemoveAll(m.figureDir(id)); err != nil {
		return fmt.Errorf("remove figure dir: %w", err)
	}

	slog.Info("figure deleted", slog.String("figure_id", id))
	return nil
}

// Clear removes every chunk from the figure's collection, keeping the
// figure itself. The sparse index is invalidated and the document count
// reset.
func (m *Manager) Clear(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fig, err := m.loadMetadata(id)
	if err != nil {
		return err
	}

	if err := m.store.Drop(id); err != nil {
		return err
	}
	if _, err := m.store.Create(id); err != nil {
		return err
	}

	m.inval.Invalidate(id)

	fig.DocumentCount = 0
	fig.UpdatedAt = time.Now().UTC()
	if err := m.saveMetadata(fig); err != nil {
		return err
	}

	slog.Info("figure cleared", slog.String("figure_id", id))
	return nil
}

// AddChunk embeds one chunk, tokenizes it for the sparse index, and stores
// it in the figure's collection under a fresh chunk id. The sparse index is
// NOT invalidated here; callers batch mutations and invalidate once.
func (m *Manager) AddChunk(ctx context.Context, figureID, text string, meta vector.ChunkMetadata) (string, error) {
	coll, err := m.store.Get(figureID)
	if err != nil {
		return "", err
	}

	vecs, err := m.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return "", ferrors.Embedding("embedding chunk", err)
	}
	if len(vecs) != 1 {
		return "", ferrors.Embedding(fmt.Sprintf("expected 1 vector, got %d", len(vecs)), nil)
	}

	chunkID, err := newChunkID(figureID)
	if err != nil {
		return "", err
	}

	rec := vector.Record{
		Text:     text,
		Metadata: meta,
		Tokens:   m.proc.Process(text),
	}
	if err := coll.Add(chunkID, vecs[0], rec); err != nil {
		return "", err
	}

	return chunkID, nil
}

// Flush persists the figure's collection and re-syncs the document count.
// Ingest calls this once per upload batch, after invalidating the sparse
// index.
func (m *Manager) Flush(figureID string) error {
	coll, err := m.store.Get(figureID)
	if err != nil {
		return err
	}
	if err := coll.Save(); err != nil {
		return ferrors.Index("persisting collection", err)
	}
	return m.SyncDocumentCount(figureID)
}

// SyncDocumentCount sets the metadata document count to the collection's
// live chunk count.
func (m *Manager) SyncDocumentCount(figureID string) error {
	coll, err := m.store.Get(figureID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fig, err := m.loadMetadata(figureID)
	if err != nil {
		return err
	}

	count := coll.Count()
	if fig.DocumentCount == count {
		return nil
	}
	fig.DocumentCount = count
	fig.UpdatedAt = time.Now().UTC()
	return m.saveMetadata(fig)
}

// Collection returns the figure's vector collection.
func (m *Manager) Collection(figureID string) (*vector.Collection, error) {
	return m.store.Get(figureID)
}

// Invalidate drops the figure's sparse index.
func (m *Manager) Invalidate(figureID string) {
	m.inval.Invalidate(figureID)
}

func (m *Manager) loadMetadata(id string) (*Figure, error) {
	data, err := os.ReadFile(m.metadataPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFound(id)
		}
		return nil, fmt.Errorf("read figure metadata: %w", err)
	}

	var fig Figure
	if err := json.Unmarshal(data, &fig); err != nil {
		return nil, ferrors.Decode(fmt.Sprintf("parsing metadata for figure %s", id), err)
	}
	return &fig, nil
}

func (m *Manager) saveMetadata(fig *Figure) error {
	data, err := json.MarshalIndent(fig, "", "  ")
	if err != nil {
		return fmt.Errorf("encode figure metadata: %w", err)
	}

	path := m.metadataPath(fig.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write figure metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename figure metadata: %w", err)
	}
	return nil
}

// newChunkID generates "<figureID>_<12 hex chars>".
func newChunkID(figureID string) (string, error) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate chunk id: %w", err)
	}
	return figureID + "_" + hex.EncodeToString(buf[:]), nil
}
