package creds

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ordersync/internal/config"
	"ordersync/internal/httpx"
	"ordersync/internal/models"
)

// ErrAuthRefresh marks a failed token refresh. The orchestrator skips the
// platform for the rest of the run; the next run retries from scratch.
var ErrAuthRefresh = errors.New("auth refresh failed")

// expiryMargin is subtracted from expires_in when recording a token's
// lifetime, so a token is never handed out moments before it dies.
const expiryMargin = 300 * time.Second

// Store owns the in-memory credential state and its durable document. No
// other component mutates tokens.
type Store struct {
	mu     sync.Mutex
	cfg    *config.Config
	client *httpx.Client
	now    func() time.Time
}

func NewStore(cfg *config.Config, client *httpx.Client) *Store {
	return &Store{cfg: cfg, client: client, now: time.Now}
}

// ValidToken returns a non-expired access token for the platform, refreshing
// lazily and persisting the document before the new token is used. Refresh
// is mutually exclusive across callers.
func (s *Store) ValidToken(ctx context.Context, platform models.Platform) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred := s.cfg.PlatformCredential(platform)
	if cred == nil {
		return "", fmt.Errorf("%w: platform %s has no refreshable credential", ErrAuthRefresh, platform)
	}
	if s.now().UTC().Before(cred.BestBefore) {
		return cred.AccessToken, nil
	}
	if err := s.refresh(ctx, platform, cred); err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

func (s *Store) refresh(ctx context.Context, platform models.Platform, cred *config.Credential) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	if platform == models.PlatformAmazon {
		// Login with Amazon wants the client pair as form fields.
		form.Set("client_id", cred.ClientID)
		form.Set("client_secret", cred.ClientSecret)
	} else {
		form.Set("scope", cred.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.RefreshURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthRefresh, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if platform != models.PlatformAmazon {
		req.Header.Set("Authorization", "Basic "+basicAuth(cred.ClientID, cred.ClientSecret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthRefresh, err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrAuthRefresh, err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("%w: response carries no access token", ErrAuthRefresh)
	}

	cred.AccessToken = body.AccessToken
	if body.RefreshToken != "" {
		// Some issuers rotate the refresh token; keep the old one otherwise.
		cred.RefreshToken = body.RefreshToken
	}
	cred.BestBefore = s.now().UTC().Add(time.Duration(body.ExpiresIn)*time.Second - expiryMargin)

	// Persist before first use: a refresh lost between here and the next
	// request would strand an already-consumed refresh token.
	if err := s.cfg.Save(); err != nil {
		return fmt.Errorf("%w: persist credential: %w", ErrAuthRefresh, err)
	}
	return nil
}

func basicAuth(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
}
