package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/glasschat/internal/bus"
	"go.uber.org/zap"
)

func refreshServer(t *testing.T, calls *atomic.Int64, delay time.Duration, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("refresh method = %s, want POST", r.Method)
		}
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":{"accessToken":"` + token + `"}}`))
	}))
}

func TestRefreshInstallsNewToken(t *testing.T) {
	var calls atomic.Int64
	srv := refreshServer(t, &calls, 0, "fresh-token")
	defer srv.Close()

	b := bus.New()
	ch, unsub := b.Subscribe("auth.", 8)
	defer unsub()

	m := NewManager(srv.URL, srv.Client(), b, zap.NewNop())
	m.SetAccount(Account{UserID: "u1", Token: "stale-token", Authenticated: true})
	<-ch // credential_changed from SetAccount

	token, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if token != "fresh-token" {
		t.Fatalf("token = %q, want fresh-token", token)
	}
	if got := m.Token(); got != "fresh-token" {
		t.Fatalf("stored token = %q", got)
	}

	select {
	case evt := <-ch:
		if evt.Kind != "auth.credential_changed" {
			t.Fatalf("kind = %q", evt.Kind)
		}
		if evt.Payload.(Account).Token != "fresh-token" {
			t.Fatalf("announced token = %q", evt.Payload.(Account).Token)
		}
	case <-time.After(time.Second):
		t.Fatal("no credential_changed event published")
	}
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	var calls atomic.Int64
	srv := refreshServer(t, &calls, 50*time.Millisecond, "shared-token")
	defer srv.Close()

	m := NewManager(srv.URL, srv.Client(), bus.New(), zap.NewNop())
	m.SetAccount(Account{UserID: "u1", Token: "stale", Authenticated: true})

	const n = 8
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = m.Refresh(context.Background())
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("refresh endpoint called %d times, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if tokens[i] != "shared-token" {
			t.Fatalf("caller %d token = %q", i, tokens[i])
		}
	}
}

func TestRefreshFailurePropagatesToAllWaiters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","message":"jwt expired"}`))
	}))
	defer srv.Close()

	m := NewManager(srv.URL, srv.Client(), bus.New(), zap.NewNop())
	m.SetAccount(Account{UserID: "u1", Token: "stale", Authenticated: true})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Refresh(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Fatalf("caller %d got nil error", i)
		}
	}
	// Failed refresh must not clobber the stored credential.
	if got := m.Token(); got != "stale" {
		t.Fatalf("token after failed refresh = %q, want stale", got)
	}
}

func TestLogoutClearsAccountAndAnnounces(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("auth.logged_out", 4)
	defer unsub()

	m := NewManager("http://unused", nil, b, zap.NewNop())
	m.SetAccount(Account{UserID: "u1", Token: "tok", Authenticated: true})
	m.Logout()

	if _, ok := m.Current(); ok {
		t.Fatal("account still present after logout")
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no logged_out event published")
	}

	// Second logout is a no-op.
	m.Logout()
	select {
	case <-ch:
		t.Fatal("duplicate logged_out event")
	case <-time.After(50 * time.Millisecond):
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestTokenExpiringSoon(t *testing.T) {
	m := NewManager("http://unused", nil, bus.New(), zap.NewNop())

	m.SetAccount(Account{Token: signedToken(t, time.Now().Add(time.Hour))})
	if m.TokenExpiringSoon(time.Minute) {
		t.Fatal("hour-long token reported as expiring")
	}
	if !m.TokenExpiringSoon(2 * time.Hour) {
		t.Fatal("token inside the window not reported")
	}

	m.SetAccount(Account{Token: signedToken(t, time.Now().Add(-time.Minute))})
	if !m.TokenExpiringSoon(time.Minute) {
		t.Fatal("expired token not reported")
	}

	m.SetAccount(Account{Token: "garbage"})
	if m.TokenExpiringSoon(time.Minute) {
		t.Fatal("unreadable token reported as expiring")
	}
}
