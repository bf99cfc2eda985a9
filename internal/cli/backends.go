package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"

	"github.com/joshsymonds/calsweep/internal/caldav"
	"github.com/joshsymonds/calsweep/internal/calendar"
	"github.com/joshsymonds/calsweep/internal/config"
	"github.com/joshsymonds/calsweep/internal/gmail"
	"github.com/joshsymonds/calsweep/internal/imapspam"
	"github.com/joshsymonds/calsweep/internal/runtime"
)

const keyringService = "calsweep"

// backends are the two capabilities a run needs.
type backends struct {
	Calendar calendar.Client
	Inbox    gmail.Client
	close    []func() error
}

func (b *backends) Close() error {
	var errs []error
	for _, c := range b.close {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

type connectFunc func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error)

func tokenStore(cfg *config.Config) runtime.TokenStore {
	if cfg.Google.TokenStore == config.TokenStoreKeyring {
		return runtime.KeyringTokenStore{Service: keyringService, Account: "default"}
	}
	return runtime.FileTokenStore{Path: cfg.Google.TokenPath}
}

func oauthConfig(cfg *config.Config) (*oauth2.Config, error) {
	imapOAuth := cfg.Inbox.Backend == config.BackendIMAP && cfg.IMAP.Auth == imapspam.AuthOAuth
	return runtime.OAuthConfig(cfg.Google.Credentials, runtime.Scopes(imapOAuth))
}

// connectBackends builds the configured calendar and inbox clients.
func connectBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	var ts oauth2.TokenSource
	if cfg.NeedsGoogleAuth() {
		oc, err := oauthConfig(cfg)
		if err != nil {
			return nil, err
		}
		ts, err = runtime.TokenSource(ctx, oc, tokenStore(cfg))
		if err != nil {
			return nil, err
		}
	}

	b := &backends{}
	switch cfg.Calendar.Backend {
	case config.BackendCalDAV:
		c, err := caldav.New(caldav.Options{
			URL:      cfg.CalDAV.URL,
			Username: cfg.CalDAV.Username,
			Password: os.Getenv(cfg.CalDAV.PasswordEnv),
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		b.Calendar = c
	default:
		c, err := runtime.NewCalendarClient(ctx, ts)
		if err != nil {
			return nil, err
		}
		b.Calendar = c
	}

	switch cfg.Inbox.Backend {
	case config.BackendIMAP:
		ib, err := imapspam.Dial(ctx, imapspam.Options{
			Address:  cfg.IMAP.Address,
			Username: cfg.IMAP.Username,
			Mailbox:  cfg.IMAP.Mailbox,
			Auth:     cfg.IMAP.Auth,
			Password: os.Getenv(cfg.IMAP.PasswordEnv),
			Tokens:   ts,
		})
		if err != nil {
			return nil, fmt.Errorf("connect imap: %w", err)
		}
		b.Inbox = ib
		b.close = append(b.close, ib.Close)
	default:
		gcl, err := runtime.NewGmailClient(ctx, ts)
		if err != nil {
			return nil, err
		}
		b.Inbox = gcl
	}
	return b, nil
}
