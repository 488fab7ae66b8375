// Package catalog loads and caches the team/project hierarchy.
package catalog

import (
	"sync"

	"github.com/chronoplan/chronoplan/pkg/models"
	"github.com/chronoplan/chronoplan/pkg/protocol"
)

// Snapshot is the last full catalog fetch, immutable once built. It is
// replaced wholesale on refresh, never patched in place.
type Snapshot struct {
	teams []protocol.TeamEntry
}

// NewSnapshot builds a snapshot from a raw team list response.
func NewSnapshot(teams []protocol.TeamEntry) *Snapshot {
	return &Snapshot{teams: teams}
}

// Resolve answers a path-scoped query against the snapshot.
// No segments: all teams in snapshot order. One segment: the named team's
// projects, each stamped with the owning team name. Deeper paths resolve to
// nothing: the hierarchy is exactly two levels deep.
func (s *Snapshot) Resolve(path models.Path) []models.CatalogEntry {
	switch len(path) {
	case 0:
		entries := make([]models.CatalogEntry, 0, len(s.teams))
		for _, t := range s.teams {
			entries = append(entries, models.Team{Name: t.Name})
		}
		return entries
	case 1:
		for _, t := range s.teams {
			if t.Name != path[0] {
				continue
			}
			entries := make([]models.CatalogEntry, 0, len(t.Projects))
			for _, p := range t.Projects {
				entries = append(entries, models.Project{
					Name:     p.Name,
					RefID:    p.RefID,
					TeamName: t.Name,
					Lock:     p.Lock,
				})
			}
			return entries
		}
		return nil
	default:
		return nil
	}
}

// cache holds the current snapshot. Readers take a fresh reference per query;
// a reference does not stay valid across Invalidate.
type cache struct {
	mu       sync.RWMutex
	snapshot *Snapshot
}

func (c *cache) get() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *cache) set(s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = s
}

func (c *cache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
}
