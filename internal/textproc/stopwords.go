package textproc

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// loadStopwords reads every .txt file in dir, one token per line,
// lower-cased. A missing or unreadable directory yields an empty set with
// a warning.
func loadStopwords(dir string) map[string]struct{} {
	stopwords := make(map[string]struct{})

	if dir == "" {
		return stopwords
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("stopword directory unavailable, bigram quality degraded",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return stopwords
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			slog.Warn("skipping unreadable stopword file",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			word := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if word != "" {
				stopwords[word] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("error reading stopword file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		_ = f.Close()
	}

	slog.Info("stopwords loaded",
		slog.String("dir", dir),
		slog.Int("count", len(stopwords)))

	return stopwords
}

// stopwordWatcher reloads the stopword set when files in the directory
// change.
type stopwordWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func newStopwordWatcher(dir string, reload func()) (*stopwordWatcher, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	sw := &stopwordWatcher{watcher: w, done: make(chan struct{})}

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".txt") {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("stopword watcher error", slog.String("error", err.Error()))
			case <-sw.done:
				return
			}
		}
	}()

	return sw, nil
}

func (sw *stopwordWatcher) Close() error {
	close(sw.done)
	return sw.watcher.Close()
}
