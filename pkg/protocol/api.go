// Package protocol defines the wire types of the ChronoPlan cloud API.
package protocol

import (
	"time"

	"github.com/chronoplan/chronoplan/pkg/models"
)

// TeamEntry is one element of the GET /team/list response array.
// The server returns the whole hierarchy in one response, projects nested.
type TeamEntry struct {
	Name     string         `json:"name"`
	Projects []ProjectEntry `json:"projects"`
}

// ProjectEntry is a project as embedded in a team list response.
type ProjectEntry struct {
	Name  string           `json:"name"`
	RefID string           `json:"refid"`
	Lock  *models.LockInfo `json:"lock,omitempty"`
}

// VersionEntry is one element of the GET /p/versions response array.
type VersionEntry struct {
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"` // epoch millis
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LoginRequest is the body for POST /auth/token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device_name,omitempty"`
}

// LoginResponse is the response from POST /auth/token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Push channel frames. Outbound frames are plain strings; inbound frames are
// JSON objects discriminated by their "type" field.
const (
	FrameAuthPrefix = "Basic "
	FrameHeartbeat  = "HB"

	PushTypeLockStatusChange = "ProjectLockStatusChange"
)

// PushFrame carries the discriminator of an inbound push frame. Everything
// else in the payload is advisory and handed to listeners raw.
type PushFrame struct {
	Type string `json:"type"`
}
