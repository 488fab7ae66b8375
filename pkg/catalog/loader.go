package catalog

import (
	"context"

	"github.com/chronoplan/chronoplan/pkg/client"
	"github.com/chronoplan/chronoplan/pkg/logging"
	"github.com/chronoplan/chronoplan/pkg/models"
)

// Config holds loader configuration. Busy is the sole UI-visible progress
// signal: invoked with true at operation start and false at completion,
// whether success, failure or cancellation. OnError receives failures from
// async loads so they never cross a goroutine boundary uncaught.
type Config struct {
	Client  *client.Client
	Busy    func(bool)
	OnError func(error)
}

// Loader orchestrates fetch-or-serve-from-cache over the catalog.
type Loader struct {
	client  *client.Client
	busy    func(bool)
	onError func(error)
	cache   cache
}

// New creates a loader.
func New(cfg Config) *Loader {
	return &Loader{
		client:  cfg.Client,
		busy:    cfg.Busy,
		onError: cfg.OnError,
	}
}

// Load resolves a path against the cached snapshot, fetching the full team
// list first if nothing is cached. On fetch failure the cache is left
// untouched. Blocks the calling goroutine; use LoadAsync off the UI thread.
func (l *Loader) Load(ctx context.Context, path models.Path) ([]models.CatalogEntry, error) {
	l.setBusy(true)
	defer l.setBusy(false)

	snap := l.cache.get()
	if snap == nil {
		teams, err := l.client.FetchTeamList(ctx)
		if err != nil {
			return nil, err
		}
		snap = NewSnapshot(teams)
		l.cache.set(snap)
		logging.Debug("catalog snapshot refreshed", logging.Int("teams", len(teams)))
	}

	return snap.Resolve(path), nil
}

// Invalidate clears the cached snapshot; the next Load is forced to
// re-fetch. Called after a push-driven structure change.
func (l *Loader) Invalidate() {
	l.cache.invalidate()
}

// Result is the outcome of an asynchronous load.
type Result struct {
	Entries []models.CatalogEntry
	Err     error
}

// LoadAsync runs Load on a background goroutine and delivers exactly one
// Result on the returned channel. Failures other than cancellation are also
// reported to the configured OnError collaborator.
func (l *Loader) LoadAsync(ctx context.Context, path models.Path) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		entries, err := l.Load(ctx, path)
		if err != nil {
			l.report(err)
		}
		ch <- Result{Entries: entries, Err: err}
	}()
	return ch
}

func (l *Loader) setBusy(b bool) {
	if l.busy != nil {
		l.busy(b)
	}
}

func (l *Loader) report(err error) {
	if client.IsCancelled(err) {
		return
	}
	if l.onError != nil {
		l.onError(err)
	}
}
