// Package watcher turns filesystem notifications into debounced, per-path
// reindex calls.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/time/rate"

	"isg/internal/extract"
	"isg/internal/incremental"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is one debounced change. Path is relative to the watched root and
// uses forward slashes.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// ChangeHandler is called once per debounced path, on its own goroutine.
type ChangeHandler func(ctx context.Context, ev Event) error

// TrackedFiles lists the indexed files below a root-relative directory.
type TrackedFiles interface {
	IndexedFilesUnder(ctx context.Context, dir string) ([]string, error)
}

// Config contains watcher configuration
type Config struct {
	Debounce       time.Duration
	MaxPerSecond   float64
	IgnorePatterns []string
	Languages      extract.LanguageSet
	// Tracked, when set, turns a removed or renamed directory into a delete
	// for every file indexed below it. The notifier reports no per-file
	// events for a moved directory.
	Tracked TrackedFiles
}

// DefaultConfig returns the default watcher configuration
func DefaultConfig() Config {
	return Config{
		Debounce:     100 * time.Millisecond,
		MaxPerSecond: 50,
	}
}

// Stats is a point-in-time view of watcher activity.
type Stats struct {
	EventsReceived   int64 `json:"eventsReceived"`
	EventsIgnored    int64 `json:"eventsIgnored"`
	ReindexTriggered int64 `json:"reindexTriggered"`
	Errors           int64 `json:"errors"`
	DirsWatched      int   `json:"dirsWatched"`
}

var watchEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "isg_watch_events_total",
	Help: "Filesystem events seen by the watcher, by type and disposition.",
}, []string{"type", "disposition"})

// Watcher watches a source tree recursively.
type Watcher struct {
	root      string
	config    Config
	handler   ChangeHandler
	logger    *slog.Logger
	matcher   *ignore.GitIgnore
	limiter   *rate.Limiter
	debouncer *Debouncer

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	dirs     map[string]bool
	inflight map[string]*Event
	running  bool

	received  atomic.Int64
	ignored   atomic.Int64
	triggered atomic.Int64
	errors    atomic.Int64
}

// New creates a watcher for root. It does not start watching until Start.
func New(root string, config Config, handler ChangeHandler, logger *slog.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watcher: nil handler")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	limit := rate.Inf
	burst := 1
	if config.MaxPerSecond > 0 {
		limit = rate.Limit(config.MaxPerSecond)
		burst = max(1, int(math.Ceil(config.MaxPerSecond)))
	}

	w := &Watcher{
		root:    abs,
		config:  config,
		handler: handler,
		logger:  logger,
		matcher: incremental.CompileIgnore(abs, config.IgnorePatterns, logger),
		limiter: rate.NewLimiter(limit, burst),
		dirs:     make(map[string]bool),
		inflight: make(map[string]*Event),
	}
	w.debouncer = NewDebouncer(config.Debounce, w.dispatch)
	return w, nil
}

// Start adds the tree to the notifier and begins processing events. It
// returns once the initial directories are registered.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root, false); err != nil {
		_ = w.Stop()
		return err
	}

	w.wg.Add(1)
	go w.processEvents()

	w.logger.Info("Watching for changes",
		"root", w.root,
		"dirs", w.Stats().DirsWatched,
		"debounce", w.config.Debounce.String(),
	)
	return nil
}

// Stop ends event processing and waits for in-flight handlers. Pending
// debounced events are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.debouncer.Cancel()
	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	w.logger.Info("Watcher stopped", "triggered", w.triggered.Load(), "errors", w.errors.Load())
	return err
}

// Stats returns current counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	dirs := len(w.dirs)
	w.mu.Unlock()
	return Stats{
		EventsReceived:   w.received.Load(),
		EventsIgnored:    w.ignored.Load(),
		ReindexTriggered: w.triggered.Load(),
		Errors:           w.errors.Load(),
		DirsWatched:      dirs,
	}
}

// IsIgnored reports whether a root-relative path is excluded from watching.
func (w *Watcher) IsIgnored(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." {
		return false
	}
	for _, part := range strings.Split(relPath, "/") {
		if incremental.IsIgnoredDir(part) {
			return true
		}
	}
	if isDir {
		return w.matcher.MatchesPath(relPath + "/")
	}
	if w.matcher.MatchesPath(relPath) {
		return true
	}
	lang, ok := extract.DetectLanguage(relPath)
	if !ok {
		return true
	}
	return w.config.Languages != nil && !w.config.Languages.Allows(lang)
}

// addRecursive registers dir and every non-ignored directory below it. When
// announce is set, files found on the way are queued as creates; they may
// have been written before the directory was registered.
func (w *Watcher) addRecursive(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Debug("Skipping unreadable path", "path", path, "error", err.Error())
			return nil
		}
		rel := w.rel(path)
		if !d.IsDir() {
			if announce && !w.IsIgnored(rel, false) {
				w.debouncer.Add(Event{Type: EventCreate, Path: rel, Timestamp: time.Now()})
			}
			return nil
		}
		if path != w.root && w.IsIgnored(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			w.logger.Warn("Failed to watch directory", "path", path, "error", err.Error())
			return nil
		}
		w.mu.Lock()
		w.dirs[path] = true
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.errors.Add(1)
			w.logger.Warn("Watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	w.received.Add(1)
	typ, ok := convertOp(ev.Op)
	if !ok {
		w.ignore(typ)
		return
	}
	rel := w.rel(ev.Name)

	if typ == EventCreate {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.IsIgnored(rel, true) {
				w.ignore(typ)
				return
			}
			if err := w.addRecursive(ev.Name, true); err != nil {
				w.errors.Add(1)
				w.logger.Warn("Failed to watch new directory", "path", rel, "error", err.Error())
			}
			return
		}
	}

	if typ == EventDelete || typ == EventRename {
		w.mu.Lock()
		wasDir := w.dirs[ev.Name]
		if wasDir {
			w.forgetDir(ev.Name)
		}
		w.mu.Unlock()
		if wasDir {
			w.dropDir(rel)
			return
		}
	}

	if w.IsIgnored(rel, false) {
		w.ignore(typ)
		return
	}
	watchEvents.WithLabelValues(typ.String(), "queued").Inc()
	w.debouncer.Add(Event{Type: typ, Path: rel, Timestamp: time.Now()})
}

// forgetDir drops dir and its subdirectories from the registry. The notifier
// removes its own watches when a directory disappears. Callers hold w.mu.
func (w *Watcher) forgetDir(dir string) {
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
}

// dropDir queues deletes for the indexed files under a vanished directory.
// It runs off the event loop; handleEvent's caller holds a wg slot, so the
// Add here cannot race Stop's Wait.
func (w *Watcher) dropDir(rel string) {
	if w.config.Tracked == nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		paths, err := w.config.Tracked.IndexedFilesUnder(w.ctx, rel)
		if err != nil {
			if w.ctx.Err() == nil {
				w.errors.Add(1)
				w.logger.Warn("Failed to list files under removed directory", "dir", rel, "error", err.Error())
			}
			return
		}
		now := time.Now()
		for _, p := range paths {
			watchEvents.WithLabelValues(EventDelete.String(), "queued").Inc()
			w.debouncer.Add(Event{Type: EventDelete, Path: p, Timestamp: now})
		}
		w.logger.Debug("Directory removed", "dir", rel, "files", len(paths))
	}()
}

func (w *Watcher) ignore(typ EventType) {
	w.ignored.Add(1)
	watchEvents.WithLabelValues(typ.String(), "ignored").Inc()
}

// dispatch runs the handler for one debounced event. It is called from the
// debouncer's timer goroutine, so the event loop never waits on it. At most
// one handler runs per path; an event arriving meanwhile is held and run
// after the current one, so a slow stale read cannot land last.
func (w *Watcher) dispatch(ev Event) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	if queued, busy := w.inflight[ev.Path]; busy {
		if queued != nil {
			ev = mergeEvents(*queued, ev)
		}
		w.inflight[ev.Path] = &ev
		w.mu.Unlock()
		return
	}
	w.inflight[ev.Path] = nil
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	for {
		w.run(ev)

		w.mu.Lock()
		next := w.inflight[ev.Path]
		if next == nil || !w.running {
			delete(w.inflight, ev.Path)
			w.mu.Unlock()
			return
		}
		w.inflight[ev.Path] = nil
		w.mu.Unlock()
		ev = *next
	}
}

func (w *Watcher) run(ev Event) {
	if err := w.limiter.Wait(w.ctx); err != nil {
		return
	}
	w.triggered.Add(1)
	if err := w.handler(w.ctx, ev); err != nil {
		w.errors.Add(1)
		w.logger.Warn("Change handler failed",
			"path", ev.Path,
			"event", ev.Type.String(),
			"error", err.Error(),
		)
	}
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func convertOp(op fsnotify.Op) (EventType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreate, true
	case op.Has(fsnotify.Write):
		return EventModify, true
	case op.Has(fsnotify.Remove):
		return EventDelete, true
	case op.Has(fsnotify.Rename):
		return EventRename, true
	default:
		return EventModify, false
	}
}
