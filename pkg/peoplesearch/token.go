package peoplesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNoCredentials is returned when every strategy in the credential chain
// is exhausted.
var ErrNoCredentials = eris.New("peoplesearch: no usable credentials")

// tokenSource resolves the access token through a fixed chain: an explicit
// token, then a cached token file, then a refresh-token exchange. Refresh is
// transparent to callers.
type tokenSource struct {
	mu           sync.Mutex
	explicit     string
	tokenFile    string
	refreshToken string
	baseURL      *string
	http         *http.Client
	cached       string
}

func newTokenSource(explicit, tokenFile, refreshToken string, baseURL *string, hc *http.Client) *tokenSource {
	return &tokenSource{
		explicit:     explicit,
		tokenFile:    tokenFile,
		refreshToken: refreshToken,
		baseURL:      baseURL,
		http:         hc,
	}
}

func (t *tokenSource) token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.explicit != "" {
		return t.explicit, nil
	}
	if t.cached != "" {
		return t.cached, nil
	}
	if t.tokenFile != "" {
		if data, err := os.ReadFile(t.tokenFile); err == nil {
			if tok := strings.TrimSpace(string(data)); tok != "" {
				t.cached = tok
				return tok, nil
			}
		}
	}
	return t.refreshLocked(ctx)
}

// invalidate discards the current token after a 401 and forces a refresh.
// An explicit token with no refresh fallback cannot recover.
func (t *tokenSource) invalidate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.explicit != "" && t.refreshToken == "" {
		return eris.New("peoplesearch: explicit token rejected and no refresh token configured")
	}
	t.explicit = ""
	t.cached = ""
	_, err := t.refreshLocked(ctx)
	return err
}

func (t *tokenSource) refreshLocked(ctx context.Context) (string, error) {
	if t.refreshToken == "" {
		return "", ErrNoCredentials
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": t.refreshToken,
	})
	if err != nil {
		return "", eris.Wrap(err, "peoplesearch: marshal token request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *t.baseURL+"/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "peoplesearch: create token request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "peoplesearch: token exchange")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "peoplesearch: read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("peoplesearch: token exchange status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "peoplesearch: unmarshal token response")
	}
	if result.AccessToken == "" {
		return "", eris.New("peoplesearch: token exchange returned empty token")
	}

	t.cached = result.AccessToken
	if t.tokenFile != "" {
		if err := writeFileAtomic(t.tokenFile, []byte(result.AccessToken)); err != nil {
			// Cache write failure is not fatal; the token still works.
			zap.L().Warn("failed to cache access token", zap.Error(err))
		}
	}
	return result.AccessToken, nil
}

// writeFileAtomic writes via a temp file and rename so a crash never leaves
// a truncated token file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return eris.Wrap(err, "peoplesearch: create temp token file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()          //nolint:errcheck
		os.Remove(tmpName)   //nolint:errcheck
		return eris.Wrap(err, "peoplesearch: write token file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrap(err, "peoplesearch: close token file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrap(err, "peoplesearch: replace token file")
	}
	return nil
}
