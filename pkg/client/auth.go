package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chronoplan/chronoplan/pkg/protocol"
)

// TokenFile holds a saved authentication token.
type TokenFile struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Server    string    `json:"server"`
	Email     string    `json:"email"`
}

// IsExpired returns true if the token has expired (with optional margin).
func (t *TokenFile) IsExpired(margin time.Duration) bool {
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// Login authenticates with email/password and returns a token.
func (c *Client) Login(ctx context.Context, email, password, deviceName string) (*protocol.LoginResponse, error) {
	body, _ := json.Marshal(protocol.LoginRequest{
		Email:    email,
		Password: password,
		Device:   deviceName,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Status: resp.StatusCode, Reason: readReason(resp.Body)}
	}

	var result protocol.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &MalformedError{Err: err}
	}

	c.SetAuthToken(result.Token)
	return &result, nil
}

// identityFromToken extracts the user id and email from the bearer token's
// claims. The client does not verify the signature: verification is the
// server's job, the client only needs a stable comparison key.
func identityFromToken(token string) (id, email string) {
	if token == "" {
		return "", ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", ""
	}
	if sub, err := claims.GetSubject(); err == nil {
		id = sub
	}
	if e, ok := claims["email"].(string); ok {
		email = e
	}
	return id, email
}

// TokenFilePath returns the path for the saved token file.
// CHRONOPLAN_CONFIG_DIR overrides the default location.
func TokenFilePath() string {
	if dir := os.Getenv("CHRONOPLAN_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "token.json")
	}
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "ChronoPlan", "token.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "chronoplan", "token.json")
}

// SaveToken saves a token file to the default location.
func SaveToken(tf *TokenFile) error {
	path := TokenFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadToken loads a token file from the default location.
func LoadToken() (*TokenFile, error) {
	data, err := os.ReadFile(TokenFilePath())
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tf, nil
}

// DeleteToken removes the saved token file.
func DeleteToken() error {
	err := os.Remove(TokenFilePath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
