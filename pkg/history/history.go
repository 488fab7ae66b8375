// Package history loads project version lists.
package history

import (
	"context"
	"time"

	"github.com/chronoplan/chronoplan/pkg/client"
	"github.com/chronoplan/chronoplan/pkg/models"
)

// Config holds loader configuration.
type Config struct {
	Client  *client.Client
	OnError func(error)
}

// Loader fetches version history for a project.
type Loader struct {
	client  *client.Client
	onError func(error)
}

// New creates a loader.
func New(cfg Config) *Loader {
	return &Loader{client: cfg.Client, onError: cfg.OnError}
}

// Load fetches the version list for a project. Ordering is server-defined
// and preserved verbatim. An empty or non-array body yields an empty list:
// absence of history is a valid state, not an error.
func (l *Loader) Load(ctx context.Context, project models.Project) ([]models.VersionRecord, error) {
	entries, err := l.client.FetchVersions(ctx, project.RefID)
	if err != nil {
		return nil, err
	}

	records := make([]models.VersionRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, models.VersionRecord{
			Author:    e.Author,
			Timestamp: time.UnixMilli(e.Timestamp),
		})
	}
	return records, nil
}

// Result is the outcome of an asynchronous load.
type Result struct {
	Records []models.VersionRecord
	Err     error
}

// LoadAsync runs Load on a background goroutine and delivers exactly one
// Result on the returned channel.
func (l *Loader) LoadAsync(ctx context.Context, project models.Project) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		records, err := l.Load(ctx, project)
		if err != nil && !client.IsCancelled(err) && l.onError != nil {
			l.onError(err)
		}
		ch <- Result{Records: records, Err: err}
	}()
	return ch
}
