package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	ferrors "github.com/figurechat/figurechat/internal/errors"
)

// On-disk file names inside a collection directory.
const (
	graphFile   = "graph.hnsw"
	metaFile    = "graph.hnsw.meta"
	recordsFile = "records.gob"
)

// HNSW parameters. M and EfSearch follow the library's recommendations for
// collections in the thousands-of-chunks range.
const (
	hnswM        = 16
	hnswEfSearch = 20
	hnswMl       = 0.25
)

// Collection is one figure's vector index plus chunk records.
// Safe for concurrent use.
type Collection struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	records map[string]Record

	// String chunk ids map to graph keys. Lazy deletion orphans graph
	// nodes rather than removing them; orphans are dropped at query time.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	dir    string
	closed bool
}

var _ Searcher = (*Collection)(nil)

// collectionMeta is the gob sidecar for the graph export.
type collectionMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = hnswM
	g.EfSearch = hnswEfSearch
	g.Ml = hnswMl
	return g
}

// NewCollection creates an empty collection rooted at dir.
func NewCollection(dir string) *Collection {
	return &Collection{
		graph:   newGraph(),
		records: make(map[string]Record),
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		dir:     dir,
	}
}

// OpenCollection loads a persisted collection from dir.
func OpenCollection(dir string) (*Collection, error) {
	c := NewCollection(dir)

	meta, err := loadGob[collectionMeta](filepath.Join(dir, metaFile))
	if err != nil {
		return nil, ferrors.New(ferrors.ErrCodeCorruptIndex,
			fmt.Sprintf("loading collection metadata from %s", dir), err)
	}
	c.idMap = meta.IDMap
	c.nextKey = meta.NextKey
	for id, key := range c.idMap {
		c.keyMap[key] = id
	}

	records, err := loadGob[map[string]Record](filepath.Join(dir, recordsFile))
	if err != nil {
		return nil, ferrors.New(ferrors.ErrCodeCorruptIndex,
			fmt.Sprintf("loading chunk records from %s", dir), err)
	}
	c.records = records

	f, err := os.Open(filepath.Join(dir, graphFile))
	if err != nil {
		return nil, ferrors.New(ferrors.ErrCodeCorruptIndex,
			fmt.Sprintf("opening graph file in %s", dir), err)
	}
	defer f.Close()

	// Import requires an io.ByteReader.
	if err := c.graph.Import(bufio.NewReader(f)); err != nil {
		return nil, ferrors.New(ferrors.ErrCodeCorruptIndex,
			fmt.Sprintf("importing graph from %s", dir), err)
	}

	return c, nil
}

// Add inserts or replaces one chunk. Replacement uses lazy deletion: the
// old graph node is orphaned, not removed.
func (c *Collection) Add(id string, vector []float32, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ferrors.Index("collection is closed", nil)
	}

	if existing, ok := c.idMap[id]; ok {
		delete(c.keyMap, existing)
		delete(c.idMap, id)
	}

	key := c.nextKey
	c.nextKey++

	c.graph.Add(hnsw.MakeNode(key, vector))
	c.idMap[id] = key
	c.keyMap[key] = id
	c.records[id] = rec

	return nil
}

// Query returns up to k nearest chunks by cosine similarity, best first.
// Orphaned graph nodes are skipped.
func (c *Collection) Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ferrors.Index("collection is closed", nil)
	}
	if c.graph.Len() == 0 || k <= 0 {
		return nil, nil
	}

	nodes := c.graph.Search(vector, k)

	results := make([]QueryResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := c.keyMap[node.Key]
		if !ok {
			continue
		}
		rec, ok := c.records[id]
		if !ok {
			continue
		}

		// CosineDistance is 1 - cos, so similarity is 1 - distance.
		distance := c.graph.Distance(vector, node.Value)
		results = append(results, QueryResult{
			ID:         id,
			Similarity: 1 - distance,
			Record:     rec,
		})
	}

	return results, nil
}

// Similarity returns the cosine similarity between vector and the stored
// chunk's embedding, false when the chunk is absent.
func (c *Collection) Similarity(id string, vector []float32) (float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key, ok := c.idMap[id]
	if !ok || c.closed {
		return 0, false
	}
	stored, ok := c.graph.Lookup(key)
	if !ok {
		return 0, false
	}
	return 1 - c.graph.Distance(vector, stored), true
}

// Get returns the record for a chunk id.
func (c *Collection) Get(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	return rec, ok
}

// Delete removes chunks by id using lazy deletion.
func (c *Collection) Delete(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if key, ok := c.idMap[id]; ok {
			delete(c.keyMap, key)
			delete(c.idMap, id)
		}
		delete(c.records, id)
	}
}

// Count returns the number of live chunks.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// All returns a snapshot of every record keyed by chunk id.
// The BM25 rebuild path iterates this.
func (c *Collection) All() map[string]Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Record, len(c.records))
	for id, rec := range c.records {
		out[id] = rec
	}
	return out
}

// Save atomically persists the collection to its directory.
// Each file is written to a sibling .tmp and renamed into place.
func (c *Collection) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ferrors.Index("collection is closed", nil)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}

	if err := c.saveGraph(filepath.Join(c.dir, graphFile)); err != nil {
		return err
	}

	meta := collectionMeta{IDMap: c.idMap, NextKey: c.nextKey}
	if err := saveGob(filepath.Join(c.dir, metaFile), meta); err != nil {
		return fmt.Errorf("save collection metadata: %w", err)
	}

	if err := saveGob(filepath.Join(c.dir, recordsFile), c.records); err != nil {
		return fmt.Errorf("save chunk records: %w", err)
	}

	return nil
}

func (c *Collection) saveGraph(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}

	if err := c.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close graph file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename graph file: %w", err)
	}
	return nil
}

// Close marks the collection closed. Callers persist first.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.graph = nil
	return nil
}

// saveGob encodes v to path atomically via a .tmp sibling.
func saveGob(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// loadGob decodes a value of type T from path.
func loadGob[T any](path string) (T, error) {
	var v T

	f, err := os.Open(path)
	if err != nil {
		return v, err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}
