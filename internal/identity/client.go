package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUserNotFound = errors.New("user not found")
)

// User carries the display attributes owned by the identity service.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Directory is the identity collaborator: it supplies stable user ids and
// display attributes. Everything else in this service references users by id.
type Directory interface {
	ValidateToken(ctx context.Context, token string) (int, error)
	User(ctx context.Context, id int) (User, error)
	BulkUsers(ctx context.Context, ids []int) ([]User, error)
}

// HTTPDirectory talks to the identity service over its internal HTTP API.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory constructs the client.
func NewHTTPDirectory(baseURL string, client *http.Client) *HTTPDirectory {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPDirectory{baseURL: baseURL, client: client}
}

// ValidateToken resolves a bearer token to a user id.
func (d *HTTPDirectory) ValidateToken(ctx context.Context, token string) (int, error) {
	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/internal/validate", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("identity validate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, ErrInvalidToken
	}

	var result struct {
		UserID int `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return result.UserID, nil
}

// User retrieves one user's display attributes.
func (d *HTTPDirectory) User(ctx context.Context, id int) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/internal/users/%d", d.baseURL, id), nil)
	if err != nil {
		return User{}, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("identity get user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return User{}, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("identity get user: status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, err
	}
	if user.ID == 0 {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// BulkUsers fetches multiple users in one call.
func (d *HTTPDirectory) BulkUsers(ctx context.Context, ids []int) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	body, _ := json.Marshal(map[string][]int{"ids": ids})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/internal/users/bulk", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity bulk users: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity bulk users: status %d", resp.StatusCode)
	}

	var result struct {
		Users []User `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Users, nil
}

var _ Directory = (*HTTPDirectory)(nil)
