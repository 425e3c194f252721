package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/matheus3301/glasschat/internal/bus"
	"go.uber.org/zap"
)

// Account is the authenticated identity plus its bearer credential.
type Account struct {
	UserID        string
	Name          string
	Token         string
	Authenticated bool
}

// Manager owns the credential. Refresh is single-flight: concurrent
// callers share one request against the refresh endpoint and all see
// the same outcome.
type Manager struct {
	refreshURL string
	httpc      *http.Client
	bus        *bus.Bus
	logger     *zap.Logger

	mu         sync.Mutex
	account    *Account
	refreshing bool
	waiters    []chan refreshResult
}

type refreshResult struct {
	token string
	err   error
}

// NewManager creates a manager with no account loaded.
func NewManager(refreshURL string, httpc *http.Client, b *bus.Bus, logger *zap.Logger) *Manager {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Manager{
		refreshURL: refreshURL,
		httpc:      httpc,
		bus:        b,
		logger:     logger,
	}
}

// Current returns a copy of the account, if one is present.
func (m *Manager) Current() (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return Account{}, false
	}
	return *m.account, true
}

// Token returns the current bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return ""
	}
	return m.account.Token
}

// CurrentUserID returns the authenticated user's id, or "".
func (m *Manager) CurrentUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return ""
	}
	return m.account.UserID
}

// SetAccount installs the account and announces the credential change.
func (m *Manager) SetAccount(a Account) {
	m.mu.Lock()
	m.account = &a
	m.mu.Unlock()
	m.bus.Emit("auth.credential_changed", a)
}

// Refresh exchanges the current credential for a fresh one. Concurrent
// calls coalesce into a single request; every caller gets the shared
// result. On success the new credential is installed and announced.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.refreshing {
		ch := make(chan refreshResult, 1)
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()
		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	m.refreshing = true
	current := ""
	if m.account != nil {
		current = m.account.Token
	}
	m.mu.Unlock()

	token, err := m.doRefresh(ctx, current)

	m.mu.Lock()
	m.refreshing = false
	waiters := m.waiters
	m.waiters = nil
	var announced Account
	if err == nil {
		if m.account == nil {
			m.account = &Account{}
		}
		m.account.Token = token
		m.account.Authenticated = true
		announced = *m.account
	}
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
	if err != nil {
		m.logger.Warn("token refresh failed", zap.Error(err))
		return "", err
	}
	m.logger.Info("token refreshed")
	m.bus.Emit("auth.credential_changed", announced)
	return token, nil
}

func (m *Manager) doRefresh(ctx context.Context, current string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.refreshURL, bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	if current != "" {
		req.Header.Set("Authorization", "Bearer "+current)
	}

	resp, err := m.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read refresh response: %w", err)
	}

	var env struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if env.Message != "" {
			return "", fmt.Errorf("refresh rejected: %s", env.Message)
		}
		return "", fmt.Errorf("refresh rejected: status %d", resp.StatusCode)
	}
	if env.Data.AccessToken == "" {
		return "", fmt.Errorf("refresh response missing access token")
	}
	return env.Data.AccessToken, nil
}

// Logout discards the account and announces the logout. Idempotent.
func (m *Manager) Logout() {
	m.mu.Lock()
	had := m.account != nil
	m.account = nil
	m.mu.Unlock()
	if !had {
		return
	}
	m.logger.Info("logged out")
	m.bus.Emit("auth.logged_out", nil)
}
