// Package lock implements the collaborative lease protocol for projects.
package lock

import (
	"context"
	"time"

	"github.com/chronoplan/chronoplan/pkg/client"
	"github.com/chronoplan/chronoplan/pkg/models"
)

// Config holds manager configuration.
type Config struct {
	Client  *client.Client
	OnError func(error)
}

// Manager issues lease acquire and release requests for projects.
// It never polls or retries: callers decide whether to retry or surface
// the failure.
type Manager struct {
	client  *client.Client
	onError func(error)
}

// New creates a manager.
func New(cfg Config) *Manager {
	return &Manager{client: cfg.Client, onError: cfg.OnError}
}

// Toggle acquires the lease when the project is unlocked and releases it
// when locked. On acquire success the returned LockInfo is the new lease
// (nil when the server sent an empty body); release success returns nil.
// A server rejection surfaces as *client.LockRejectedError and the caller
// must not assume the lock state changed.
func (m *Manager) Toggle(ctx context.Context, project models.Project, requestToken bool, duration time.Duration) (*models.LockInfo, error) {
	if project.IsLocked(time.Now()) {
		return nil, m.client.ReleaseLock(ctx, project.RefID)
	}
	return m.client.AcquireLock(ctx, project.RefID, duration, requestToken)
}

// ToggleResult is the outcome of an asynchronous toggle.
type ToggleResult struct {
	Lock *models.LockInfo
	Err  error
}

// ToggleAsync runs Toggle on a background goroutine and delivers exactly one
// ToggleResult on the returned channel.
func (m *Manager) ToggleAsync(ctx context.Context, project models.Project, requestToken bool, duration time.Duration) <-chan ToggleResult {
	ch := make(chan ToggleResult, 1)
	go func() {
		lockInfo, err := m.Toggle(ctx, project, requestToken, duration)
		if err != nil && !client.IsCancelled(err) && m.onError != nil {
			m.onError(err)
		}
		ch <- ToggleResult{Lock: lockInfo, Err: err}
	}()
	return ch
}
