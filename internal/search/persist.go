package search

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Index persistence format version. Bump when the snapshot layout changes;
// a mismatch discards the files and triggers a rebuild.
const indexVersion = 1

// A persisted index is three sibling gob files keyed by figure id:
// <id>.index.gob (term statistics), <id>.docs.gob (document lengths), and
// <id>.meta.gob (version and build info). All three must be present and
// consistent or the index is treated as absent.
type indexFileSet struct {
	index string
	docs  string
	meta  string
}

func filesFor(dir, figureID string) indexFileSet {
	return indexFileSet{
		index: filepath.Join(dir, figureID+".index.gob"),
		docs:  filepath.Join(dir, figureID+".docs.gob"),
		meta:  filepath.Join(dir, figureID+".meta.gob"),
	}
}

type indexFilePayload struct {
	TermFreq map[string]map[string]int
	DocFreq  map[string]int
}

type docsFilePayload struct {
	DocLen   map[string]int
	TotalLen int
}

type metaFilePayload struct {
	Version  int
	NumDocs  int
	BuiltAt  time.Time
	TokenSum int
}

// save writes the index as three gob files, each via .tmp + rename.
func (idx *BM25Index) save(dir, figureID string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	files := filesFor(dir, figureID)

	if err := writeGob(files.index, indexFilePayload{
		TermFreq: idx.termFreq,
		DocFreq:  idx.docFreq,
	}); err != nil {
		return fmt.Errorf("save term statistics: %w", err)
	}

	if err := writeGob(files.docs, docsFilePayload{
		DocLen:   idx.docLen,
		TotalLen: idx.totalLen,
	}); err != nil {
		return fmt.Errorf("save document lengths: %w", err)
	}

	if err := writeGob(files.meta, metaFilePayload{
		Version:  indexVersion,
		NumDocs:  len(idx.termFreq),
		BuiltAt:  time.Now().UTC(),
		TokenSum: idx.totalLen,
	}); err != nil {
		return fmt.Errorf("save index metadata: %w", err)
	}

	return nil
}

// loadIndex reads a persisted index. Returns (nil, nil) when the files are
// absent; any other inconsistency is an error and the caller rebuilds.
func loadIndex(dir, figureID string) (*BM25Index, error) {
	files := filesFor(dir, figureID)

	var meta metaFilePayload
	if err := readGob(files.meta, &meta); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index metadata: %w", err)
	}
	if meta.Version != indexVersion {
		return nil, fmt.Errorf("index version %d, want %d", meta.Version, indexVersion)
	}

	var ixp indexFilePayload
	if err := readGob(files.index, &ixp); err != nil {
		return nil, fmt.Errorf("read term statistics: %w", err)
	}

	var dp docsFilePayload
	if err := readGob(files.docs, &dp); err != nil {
		return nil, fmt.Errorf("read document lengths: %w", err)
	}

	if len(ixp.TermFreq) != meta.NumDocs || dp.TotalLen != meta.TokenSum {
		return nil, fmt.Errorf("index files inconsistent for figure %s", figureID)
	}

	idx := &BM25Index{
		termFreq: ixp.TermFreq,
		docFreq:  ixp.DocFreq,
		docLen:   dp.DocLen,
		totalLen: dp.TotalLen,
	}
	if idx.termFreq == nil {
		idx.termFreq = make(map[string]map[string]int)
	}
	if idx.docFreq == nil {
		idx.docFreq = make(map[string]int)
	}
	if idx.docLen == nil {
		idx.docLen = make(map[string]int)
	}

	return idx, nil
}

// removeIndexFiles deletes all three files; missing files are fine.
func removeIndexFiles(dir, figureID string) error {
	files := filesFor(dir, figureID)
	var firstErr error
	for _, p := range []string{files.index, files.docs, files.meta} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writeGob(path string, v any) error {
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

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}
