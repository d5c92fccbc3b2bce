package gcal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/perbu/calreceipt/applog"
	"github.com/perbu/calreceipt/config"
)

const redirectAddr = "localhost:8066"

// ErrLoginRequired means no usable token is stored and a browser login could
// not be started.
var ErrLoginRequired = errors.New("interactive login required")

// AuthError reports a failure to obtain a credential. It aborts the run.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Interactive reports whether a user is present on stdin to complete a
// browser login.
func Interactive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewClient returns an HTTP client authorized for read-only calendar access.
// Tokens refreshed while the client is in use are written back through loader.
func NewClient(ctx context.Context, loader config.Loader, interactive bool) (*http.Client, error) {
	conf, tok, err := ObtainToken(ctx, loader, interactive)
	if err != nil {
		return nil, err
	}
	ts := &savingTokenSource{
		base:   conf.TokenSource(ctx, tok),
		loader: loader,
		last:   tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, ts)), nil
}

// ObtainToken loads the stored token, refreshing and saving it when it has
// expired. Without a usable token it runs the browser flow when interactive
// is set and fails with ErrLoginRequired otherwise.
func ObtainToken(ctx context.Context, loader config.Loader, interactive bool) (*oauth2.Config, *oauth2.Token, error) {
	credBytes, err := loader.LoadCredentials()
	if err != nil {
		return nil, nil, &AuthError{Op: "loading client credentials", Err: err}
	}
	conf, err := google.ConfigFromJSON(credBytes, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, nil, &AuthError{Op: "parsing client credentials", Err: err}
	}

	tok, err := loadToken(loader)
	switch {
	case err == nil:
		fresh, err := conf.TokenSource(ctx, tok).Token()
		if err == nil {
			if fresh.AccessToken != tok.AccessToken {
				applog.Info("access token refreshed", "expiry", fresh.Expiry.Format(time.RFC3339))
				if err := saveToken(loader, fresh); err != nil {
					return nil, nil, &AuthError{Op: "saving refreshed token", Err: err}
				}
			}
			return conf, fresh, nil
		}
		applog.Error("token refresh failed", err)
	case errors.Is(err, fs.ErrNotExist):
		applog.Info("no stored token")
	default:
		return nil, nil, err
	}

	if !interactive {
		return nil, nil, &AuthError{Op: "obtaining token", Err: ErrLoginRequired}
	}
	tok, err = getTokenFromWeb(ctx, conf, os.Stdout)
	if err != nil {
		return nil, nil, &AuthError{Op: "browser login", Err: err}
	}
	if err := saveToken(loader, tok); err != nil {
		return nil, nil, &AuthError{Op: "saving token", Err: err}
	}
	return conf, tok, nil
}

func loadToken(loader config.Loader) (*oauth2.Token, error) {
	tokenBytes, err := loader.LoadToken()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, &AuthError{Op: "reading stored token", Err: err}
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenBytes, &tok); err != nil {
		return nil, &AuthError{Op: "decoding stored token", Err: err}
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, &AuthError{Op: "decoding stored token", Err: errors.New("token has neither access nor refresh token")}
	}
	return &tok, nil
}

func saveToken(loader config.Loader, tok *oauth2.Token) error {
	tokenBytes, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("json.Marshal token: %w", err)
	}
	return loader.SaveToken(tokenBytes)
}

// savingTokenSource persists every new access token its base source hands out.
type savingTokenSource struct {
	base   oauth2.TokenSource
	loader config.Loader

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.loader, tok); err != nil {
			applog.Error("saving refreshed token failed", err)
		}
	}
	return tok, nil
}

// getTokenFromWeb handles the OAuth2 authorization code flow with a loopback redirect.
func getTokenFromWeb(ctx context.Context, conf *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	webConf := *conf
	webConf.RedirectURL = "http://" + redirectAddr + "/"

	state, err := randomState()
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", redirectAddr)
	if err != nil {
		return nil, fmt.Errorf("listening for redirect: %w", err)
	}

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing code", http.StatusBadRequest)
			return
		}
		_, _ = fmt.Fprintln(w, "Received authentication code. You can close this page now.")
		select {
		case codeCh <- code:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error("redirect listener stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			applog.Error("redirect listener shutdown", err)
		}
	}()

	authURL := webConf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	_, _ = fmt.Fprintf(out, "Go to the following link in your browser:\n%v\n", authURL)

	var authCode string
	select {
	case authCode = <-codeCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := webConf.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
