// internal/runtime/auth.go
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

// ScopeMailIMAP grants IMAP access for OAUTHBEARER logins.
const ScopeMailIMAP = "https://mail.google.com/"

// Scopes returns the OAuth scopes a sweep needs. Calendar events are
// deleted, so the calendar scope is read/write; the inbox is only read.
func Scopes(imap bool) []string {
	scopes := []string{calendar.CalendarEventsScope, gmail.GmailReadonlyScope}
	if imap {
		scopes = append(scopes, ScopeMailIMAP)
	}
	return scopes
}

// OAuthConfig loads a Google client secret file (the "installed app" JSON
// downloaded from the Cloud console).
func OAuthConfig(credentialsPath string, scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return cfg, nil
}

// TokenSource returns a source backed by the stored token that persists
// refreshed tokens. The token is refreshed once up front so expired
// credentials fail before any API call.
func TokenSource(ctx context.Context, cfg *oauth2.Config, store TokenStore) (oauth2.TokenSource, error) {
	tok, err := store.LoadToken()
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return nil, fmt.Errorf("no stored token, run `calsweep auth` first: %w", err)
		}
		return nil, err
	}
	ts := &savingTokenSource{src: cfg.TokenSource(ctx, tok), store: store, last: tok}
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return ts, nil
}

type savingTokenSource struct {
	mu    sync.Mutex
	src   oauth2.TokenSource
	store TokenStore
	last  *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.last == nil || s.last.AccessToken != tok.AccessToken {
		if err := s.store.SaveToken(tok); err != nil {
			return nil, fmt.Errorf("save refreshed token: %w", err)
		}
		s.last = tok
	}
	return tok, nil
}

// Authorize runs the installed-app loopback flow and stores the token.
func Authorize(ctx context.Context, cfg *oauth2.Config, store TokenStore, out io.Writer) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("start callback listener: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	flowCfg := *cfg
	flowCfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	state := uuid.NewString()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			errCh <- fmt.Errorf("authorization denied: %s", q.Get("error"))
			fmt.Fprint(w, "Authorization failed. You can close this tab.")
			return
		}
		codeCh <- code
		fmt.Fprint(w, "Authorization complete. You can close this tab.")
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(listener) //nolint:errcheck // closed by Shutdown below
	defer server.Shutdown(context.Background())

	url := flowCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open this URL in your browser to authorize calsweep:\n\n  %s\n\nWaiting for authorization...\n", url)

	select {
	case code := <-codeCh:
		tok, err := flowCfg.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("exchange auth code: %w", err)
		}
		if err := store.SaveToken(tok); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
