// Package models contains the typed catalog entries shared across the sync core.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Path identifies a location in the team/project hierarchy.
// Empty = team list, one segment = a team's project list. The hierarchy is
// exactly two levels deep; deeper paths resolve to nothing.
type Path []string

// ParsePath splits a slash-separated location string.
func ParsePath(s string) Path {
	s = strings.Trim(s, "/")
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "/"))
}

func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

// LockInfo describes an exclusive write lease on a project.
// The server creates it on acquire and clears it on release or expiry;
// the client only reads it.
type LockInfo struct {
	OwnerID           string `json:"ownerId"`
	OwnerName         string `json:"ownerName"`
	OwnerEmail        string `json:"ownerEmail"`
	ExpirationEpochMs int64  `json:"expirationEpochMillis"`
	LockToken         string `json:"lockToken,omitempty"`
}

// Active reports whether the lease is still held at the given instant.
// Expired lock data is structurally present but semantically unlocked.
func (l *LockInfo) Active(now time.Time) bool {
	return l != nil && l.ExpirationEpochMs > now.UnixMilli()
}

// CatalogEntry is the capability set shared by teams, projects and versions.
type CatalogEntry interface {
	EntryName() string
	IsDirectory() bool
	IsLockable() bool
	IsLocked(now time.Time) bool
	CanChangeLock(userID string, now time.Time) bool
}

// Team is a top-level catalog entry grouping projects.
type Team struct {
	Name string
}

func (t Team) EntryName() string                    { return t.Name }
func (t Team) IsDirectory() bool                    { return true }
func (t Team) IsLockable() bool                     { return false }
func (t Team) IsLocked(time.Time) bool              { return false }
func (t Team) CanChangeLock(string, time.Time) bool { return false }

// Project is a lockable document in the catalog.
type Project struct {
	Name     string
	RefID    string // stable server-assigned identifier
	TeamName string // owning team, stamped at resolution time for display
	Lock     *LockInfo
}

func (p Project) EntryName() string           { return p.Name }
func (p Project) IsDirectory() bool           { return false }
func (p Project) IsLockable() bool            { return true }
func (p Project) IsLocked(now time.Time) bool { return p.Lock.Active(now) }

// CanChangeLock reports whether the given user may toggle the lease:
// always when unlocked, otherwise only for the lock owner.
func (p Project) CanChangeLock(userID string, now time.Time) bool {
	if !p.Lock.Active(now) {
		return true
	}
	return p.Lock.OwnerID == userID
}

// VersionRecord is one entry of a project's version history.
type VersionRecord struct {
	Author    string
	Timestamp time.Time
}

func (v VersionRecord) EntryName() string                    { return v.DisplayName() }
func (v VersionRecord) IsDirectory() bool                    { return false }
func (v VersionRecord) IsLockable() bool                     { return false }
func (v VersionRecord) IsLocked(time.Time) bool              { return false }
func (v VersionRecord) CanChangeLock(string, time.Time) bool { return false }

// DisplayName derives the label shown in the history pane.
func (v VersionRecord) DisplayName() string {
	return fmt.Sprintf("%s, %s", v.Author, v.Timestamp.Format("2006-01-02 15:04"))
}
