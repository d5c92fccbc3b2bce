package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/perbu/calreceipt/config"
)

// memLoader keeps credentials and token in memory.
type memLoader struct {
	credentials []byte
	token       []byte
	saved       int
}

func (m *memLoader) LoadConfig() (*config.Config, error) {
	return config.DefaultConfig(), nil
}

func (m *memLoader) LoadPreferences() (*config.Preferences, error) {
	return &config.Preferences{}, nil
}

func (m *memLoader) LoadCredentials() ([]byte, error) {
	if m.credentials == nil {
		return nil, fs.ErrNotExist
	}
	return m.credentials, nil
}

func (m *memLoader) LoadToken() ([]byte, error) {
	if m.token == nil {
		return nil, fs.ErrNotExist
	}
	return m.token, nil
}

func (m *memLoader) SaveToken(token []byte) error {
	m.token = token
	m.saved++
	return nil
}

func credentialsFor(tokenURL string) []byte {
	return []byte(fmt.Sprintf(`{"installed":{
		"client_id":"client.apps.googleusercontent.com",
		"client_secret":"secret",
		"auth_uri":"https://accounts.example.com/o/oauth2/auth",
		"token_uri":%q,
		"redirect_uris":["http://localhost"]}}`, tokenURL))
}

func tokenJSON(t *testing.T, tok *oauth2.Token) []byte {
	t.Helper()
	b, err := json.Marshal(tok)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestObtainTokenValid(t *testing.T) {
	loader := &memLoader{
		credentials: credentialsFor("http://127.0.0.1:1/token"),
		token: tokenJSON(t, &oauth2.Token{
			AccessToken:  "still-good",
			TokenType:    "Bearer",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(time.Hour),
		}),
	}
	_, tok, err := ObtainToken(context.Background(), loader, false)
	if err != nil {
		t.Fatalf("ObtainToken: %v", err)
	}
	if tok.AccessToken != "still-good" {
		t.Errorf("access token %q", tok.AccessToken)
	}
	if loader.saved != 0 {
		t.Errorf("valid token was saved %d times", loader.saved)
	}
}

func TestObtainTokenRefreshesAndSaves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "refresh_token" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	loader := &memLoader{
		credentials: credentialsFor(srv.URL),
		token: tokenJSON(t, &oauth2.Token{
			AccessToken:  "stale",
			TokenType:    "Bearer",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(-time.Hour),
		}),
	}
	_, tok, err := ObtainToken(context.Background(), loader, false)
	if err != nil {
		t.Fatalf("ObtainToken: %v", err)
	}
	if tok.AccessToken != "fresh" {
		t.Errorf("access token %q, want fresh", tok.AccessToken)
	}
	if loader.saved != 1 {
		t.Fatalf("token saved %d times, want 1", loader.saved)
	}
	var stored oauth2.Token
	if err := json.Unmarshal(loader.token, &stored); err != nil {
		t.Fatal(err)
	}
	if stored.AccessToken != "fresh" || stored.RefreshToken != "refresh" {
		t.Errorf("stored token %+v", stored)
	}
}

func TestObtainTokenErrors(t *testing.T) {
	tests := []struct {
		name   string
		loader *memLoader
		want   error
	}{
		{
			name:   "missing credentials",
			loader: &memLoader{},
			want:   fs.ErrNotExist,
		},
		{
			name:   "corrupt credentials",
			loader: &memLoader{credentials: []byte(`{"installed":`)},
		},
		{
			name:   "corrupt token",
			loader: &memLoader{credentials: credentialsFor("http://127.0.0.1:1/token"), token: []byte("not json")},
		},
		{
			name:   "empty token",
			loader: &memLoader{credentials: credentialsFor("http://127.0.0.1:1/token"), token: []byte("{}")},
		},
		{
			name:   "no token and no terminal",
			loader: &memLoader{credentials: credentialsFor("http://127.0.0.1:1/token")},
			want:   ErrLoginRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ObtainToken(context.Background(), tt.loader, false)
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *AuthError, got %T: %v", err, err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error %v does not wrap %v", err, tt.want)
			}
		})
	}
}

type countingSource struct {
	tokens []string
	i      int
}

func (c *countingSource) Token() (*oauth2.Token, error) {
	tok := &oauth2.Token{AccessToken: c.tokens[c.i]}
	if c.i < len(c.tokens)-1 {
		c.i++
	}
	return tok, nil
}

func TestSavingTokenSource(t *testing.T) {
	loader := &memLoader{}
	ts := &savingTokenSource{
		base:   &countingSource{tokens: []string{"a", "a", "b"}},
		loader: loader,
		last:   "a",
	}
	for i := 0; i < 3; i++ {
		if _, err := ts.Token(); err != nil {
			t.Fatal(err)
		}
	}
	if loader.saved != 1 {
		t.Errorf("saved %d times, want 1", loader.saved)
	}
}
