package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned by a TokenStore that holds nothing yet.
var ErrNoToken = errors.New("no token stored")

// TokenStore persists a single OAuth token.
type TokenStore interface {
	LoadToken() (*oauth2.Token, error)
	SaveToken(tok *oauth2.Token) error
}

// FileTokenStore keeps the token as JSON on disk.
type FileTokenStore struct {
	Path string
}

func (f FileTokenStore) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", f.Path, err)
	}
	return &tok, nil
}

func (f FileTokenStore) SaveToken(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// KeyringTokenStore keeps the token in the OS keyring
// (macOS Keychain, Windows Credential Manager or Secret Service).
type KeyringTokenStore struct {
	Service string
	Account string
}

func (k KeyringTokenStore) LoadToken() (*oauth2.Token, error) {
	data, err := keyring.Get(k.Service, k.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("load token from keyring: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, fmt.Errorf("decode keyring token: %w", err)
	}
	return &tok, nil
}

func (k KeyringTokenStore) SaveToken(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := keyring.Set(k.Service, k.Account, string(data)); err != nil {
		return fmt.Errorf("save token to keyring: %w", err)
	}
	return nil
}

var (
	_ TokenStore = FileTokenStore{}
	_ TokenStore = KeyringTokenStore{}
)
