// Package hub reads user activity from the JupyterHub REST API.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type apiUser struct {
	Name         string               `json:"name"`
	LastActivity *time.Time           `json:"last_activity"`
	Servers      map[string]apiServer `json:"servers"`
}

type apiServer struct {
	Ready        bool       `json:"ready"`
	LastActivity *time.Time `json:"last_activity"`
}

// Client lists hub users and their last-activity instants. One API call per
// roster fetch; per-user lookups are served from that fetch.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	mu           sync.RWMutex
	lastActivity map[string]*time.Time
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:      baseURL,
		token:        token,
		http:         &http.Client{Timeout: 30 * time.Second},
		lastActivity: make(map[string]*time.Time),
	}
}

// Usernames fetches the current user list and refreshes the cached
// last-activity map.
func (c *Client) Usernames(ctx context.Context) ([]string, error) {
	users, err := c.fetchUsers(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(users))
	activity := make(map[string]*time.Time, len(users))
	for _, user := range users {
		if user.Name == "" {
			continue
		}
		names = append(names, user.Name)
		activity[user.Name] = effectiveLastActivity(user)
	}

	c.mu.Lock()
	c.lastActivity = activity
	c.mu.Unlock()

	return names, nil
}

// LastActivity returns the user's most recent activity instant, nil when the
// hub has never seen the user active. Unknown usernames resolve to nil.
func (c *Client) LastActivity(ctx context.Context, username string) (*time.Time, error) {
	c.mu.RLock()
	cached := len(c.lastActivity) > 0
	last := c.lastActivity[username]
	c.mu.RUnlock()

	if cached {
		return last, nil
	}

	if _, err := c.Usernames(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity[username], nil
}

func (c *Client) fetchUsers(ctx context.Context) ([]apiUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub users request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub users request: status %d", resp.StatusCode)
	}

	var users []apiUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("hub users decode: %w", err)
	}
	return users, nil
}

// effectiveLastActivity prefers the default server's last activity and falls
// back to the user-level field.
func effectiveLastActivity(user apiUser) *time.Time {
	if server, ok := user.Servers[""]; ok && server.LastActivity != nil {
		return server.LastActivity
	}
	return user.LastActivity
}
