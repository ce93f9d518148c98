// Package syncwatch watches a host repository's and its sandbox clone's
// .git directories and keeps their remote-tracking refs in sync by
// triggering fetches in the opposite direction from whichever side
// changed, without touching either working tree.
package syncwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"sandboxctl/internal/gitclone"
	"sandboxctl/internal/logging"
)

// DebounceWindow coalesces a burst of filesystem events into one fetch.
const DebounceWindow = 250 * time.Millisecond

// QuietWindow suppresses events from a .git directory for a short time
// after we ourselves fetched into it, so that fetch's own ref updates
// don't trigger a reciprocal fetch back.
const QuietWindow = 500 * time.Millisecond

// Watcher keeps a host repo and its sandbox clone's refs converged.
type Watcher struct {
	repoRoot    string
	cloneDir    string
	sandboxName string
	logger      *logging.ComponentLogger

	fsWatcher *fsnotify.Watcher
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	mu         sync.Mutex
	quietUntil map[string]time.Time
	pending    map[string]bool
	debounce   *time.Timer

	// failureCount tracks consecutive fetch failures per side, so
	// repeated failures (e.g. a host gone to sleep) don't flood the log:
	// only the 1st, 5th, 20th, ... consecutive failure is logged.
	failureCount map[string]int

	// inFlight tracks fetches issued by the current (or most recent)
	// flush, so Stop can wait for them to finish — bounded, since
	// fetches are bounded — before tearing the watcher down.
	inFlight sync.WaitGroup
}

// New creates a Watcher for the repo at repoRoot and its clone at
// cloneDir. Call Start to begin watching; call Stop to terminate it.
func New(repoRoot, cloneDir, sandboxName string, logger *logging.ComponentLogger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &watcherError{err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		repoRoot:     repoRoot,
		cloneDir:     cloneDir,
		sandboxName:  sandboxName,
		logger:       logger,
		fsWatcher:    fsWatcher,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		quietUntil:   make(map[string]time.Time),
		pending:      make(map[string]bool),
		failureCount: make(map[string]int),
	}

	if err := w.watchGitDir(hostGitDir(repoRoot)); err != nil {
		_ = fsWatcher.Close()
		cancel()
		return nil, err
	}
	if err := w.watchGitDir(cloneGitDir(cloneDir)); err != nil {
		_ = fsWatcher.Close()
		cancel()
		return nil, err
	}

	return w, nil
}

// Start begins the event loop. Run it in a goroutine; it returns when
// Stop is called.
func (w *Watcher) Start() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warnf("watcher error: %v", err)
			}
		}
	}
}

// Stop terminates the watcher, waits for any in-flight fetch to finish,
// and waits for Start to return.
func (w *Watcher) Stop() {
	_ = w.fsWatcher.Close()
	<-w.done
	w.inFlight.Wait()
	w.cancel()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	side := w.classify(event.Name)
	if side == "" {
		return
	}

	w.mu.Lock()
	if until, ok := w.quietUntil[side]; ok && time.Now().Before(until) {
		w.mu.Unlock()
		return
	}
	w.pending[side] = true
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(DebounceWindow, w.flush)
	w.mu.Unlock()
}

// flush runs one fetch per side that accumulated pending events since the
// last flush, concurrently — a host-side change and a clone-side change
// arriving in the same debounce window fetch in parallel rather than
// serializing one behind the other.
func (w *Watcher) flush() {
	w.mu.Lock()
	sides := make([]string, 0, len(w.pending))
	for s := range w.pending {
		sides = append(sides, s)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if len(sides) == 0 {
		return
	}

	w.inFlight.Add(1)
	defer w.inFlight.Done()

	var eg errgroup.Group
	for _, side := range sides {
		side := side
		eg.Go(func() error {
			w.syncFrom(side)
			return nil
		})
	}
	_ = eg.Wait()
}

// syncFrom fetches into the side opposite the one that changed: a change
// on the host repo means the clone should fetch origin; a change in the
// clone means the host repo should fetch its sandbox-<name> remote.
func (w *Watcher) syncFrom(changedSide string) {
	var fetchDir, remote, fetchSide string
	switch changedSide {
	case sideHost:
		fetchDir, remote, fetchSide = w.cloneDir, "origin", sideClone
	case sideClone:
		fetchDir, remote, fetchSide = w.repoRoot, gitclone.RemoteName(w.sandboxName), sideHost
	default:
		return
	}

	w.mu.Lock()
	w.quietUntil[fetchSide] = time.Now().Add(QuietWindow)
	w.mu.Unlock()

	if err := gitclone.Fetch(w.ctx, fetchDir, remote); err != nil {
		if w.logger != nil && w.shouldLogFailure(fetchSide) {
			w.logger.Warnf("sync fetch (%s from %s) failed: %v", fetchDir, remote, err)
		}
		return
	}

	w.mu.Lock()
	w.failureCount[fetchSide] = 0
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Infof("synced %s <- %s after change in %s", fetchDir, remote, changedSide)
	}
}

// shouldLogFailure bumps side's consecutive-failure count and reports
// whether this failure should be logged: the 1st, 5th, 20th, and every
// 15th thereafter, so a host gone to sleep or offline doesn't flood the
// log with one line per debounce window.
func (w *Watcher) shouldLogFailure(side string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.failureCount[side]++
	n := w.failureCount[side]

	switch {
	case n == 1, n == 5, n == 20:
		return true
	case n > 20:
		return (n-20)%15 == 0
	default:
		return false
	}
}

const (
	sideHost  = "host"
	sideClone = "clone"
)

func (w *Watcher) classify(name string) string {
	if within(name, hostGitDir(w.repoRoot)) {
		return sideHost
	}
	if within(name, cloneGitDir(w.cloneDir)) {
		return sideClone
	}
	return ""
}

// within reports whether path is dir itself or lives somewhere beneath it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, "../"))
}

// watchGitDir recursively adds every directory under dir (refs/, logs/,
// etc.) to the watcher, since fsnotify does not watch subtrees on its
// own and git moves refs by writing files several levels deep.
func (w *Watcher) watchGitDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &watcherError{err}
	}
	if !info.IsDir() {
		return &watcherError{fmt.Errorf("%s is not a directory", dir)}
	}

	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == "objects" {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func hostGitDir(repoRoot string) string  { return filepath.Join(repoRoot, ".git") }
func cloneGitDir(cloneDir string) string { return filepath.Join(cloneDir, ".git") }

type watcherError struct{ err error }

func (e *watcherError) Error() string { return ErrWatcherFailed.Error() + ": " + e.err.Error() }
func (e *watcherError) Unwrap() error { return ErrWatcherFailed }
