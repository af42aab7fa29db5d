package vector

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	ferrors "github.com/figurechat/figurechat/internal/errors"
)

// Store manages one Collection per figure under a root directory.
// Collections load lazily on first access and stay cached.
type Store struct {
	root string

	mu          sync.Mutex
	collections map[string]*Collection
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector store root: %w", err)
	}
	return &Store{
		root:        dir,
		collections: make(map[string]*Collection),
	}, nil
}

func (s *Store) collectionDir(figureID string) string {
	return filepath.Join(s.root, "figure_"+figureID)
}

// Create makes an empty collection for the figure. It fails if one already
// exists on disk or in memory.
func (s *Store) Create(figureID string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[figureID]; ok {
		return nil, ferrors.New(ferrors.ErrCodeFigureExists,
			fmt.Sprintf("collection for figure %q already exists", figureID), nil)
	}

	dir := s.collectionDir(figureID)
	if _, err := os.Stat(filepath.Join(dir, recordsFile)); err == nil {
		return nil, ferrors.New(ferrors.ErrCodeFigureExists,
			fmt.Sprintf("collection for figure %q already exists on disk", figureID), nil)
	}

	c := NewCollection(dir)
	s.collections[figureID] = c
	return c, nil
}

// Get returns the figure's collection, loading from disk on first access.
func (s *Store) Get(figureID string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[figureID]; ok {
		return c, nil
	}

	dir := s.collectionDir(figureID)
	if _, err := os.Stat(filepath.Join(dir, recordsFile)); err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFound(figureID)
		}
		return nil, fmt.Errorf("stat collection dir: %w", err)
	}

	c, err := OpenCollection(dir)
	if err != nil {
		return nil, err
	}

	slog.Debug("collection loaded",
		slog.String("figure_id", figureID),
		slog.Int("chunks", c.Count()))

	s.collections[figureID] = c
	return c, nil
}

// Exists reports whether a collection exists for the figure.
func (s *Store) Exists(figureID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[figureID]; ok {
		return true
	}
	_, err := os.Stat(filepath.Join(s.collectionDir(figureID), recordsFile))
	return err == nil
}

// Drop removes the figure's collection from memory and disk.
func (s *Store) Drop(figureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[figureID]; ok {
		_ = c.Close()
		delete(s.collections, figureID)
	}

	dir := s.collectionDir(figureID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove collection dir: %w", err)
	}
	return nil
}

// Close persists and closes every loaded collection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, c := range s.collections {
		if err := c.Save(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("save collection %s: %w", id, err)
		}
		_ = c.Close()
	}
	s.collections = make(map[string]*Collection)
	return firstErr
}
