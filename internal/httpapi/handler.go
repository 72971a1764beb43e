package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"ordersync/internal/config"
	"ordersync/internal/httpx"
)

// Handler implements the one-time eBay consent flow: redirect the operator to
// the authorization page, then exchange the returned code for the initial
// token pair and persist it.
type Handler struct {
	Config *config.Config
	Client *httpx.Client
	Log    *zap.Logger
	// Now feeds the recorded token expiry; defaults to time.Now.
	Now func() time.Time
}

func (h *Handler) EbayAuth(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, h.consentURL(), http.StatusFound)
		return
	}

	if err := h.exchange(r.Context(), code); err != nil {
		h.Log.Error("ebay code exchange failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "authorization failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "The app is authorized, thank you.")
	fmt.Fprintln(w, "You can close this tab now.")
}

func (h *Handler) consentURL() string {
	ebay := h.Config.Ebay
	q := url.Values{}
	q.Set("client_id", ebay.ClientID)
	q.Set("redirect_uri", h.Config.Server.RedirectURI+ebay.AuthSlug)
	q.Set("response_type", "code")
	q.Set("scope", ebay.Scope)
	q.Set("prompt", "login")
	return ebay.AuthURL + "?" + q.Encode()
}

func (h *Handler) exchange(ctx context.Context, code string) error {
	ebay := &h.Config.Ebay

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", h.Config.Server.RedirectURI+ebay.AuthSlug)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ebay.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(ebay.ClientID, ebay.ClientSecret)

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" || body.RefreshToken == "" {
		return fmt.Errorf("token response is incomplete")
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	ebay.AccessToken = body.AccessToken
	ebay.RefreshToken = body.RefreshToken
	ebay.BestBefore = now().UTC().Add(time.Duration(body.ExpiresIn)*time.Second - 300*time.Second)

	return h.Config.Save()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
