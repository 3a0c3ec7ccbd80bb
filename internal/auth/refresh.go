package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// DefaultTokenURL is Google's OAuth 2.0 token endpoint.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// RefreshSource exchanges a long-lived refresh token for access tokens
// (OAuth 2.0 refresh_token grant).
type RefreshSource struct {
	clientID     string
	clientSecret string
	refreshToken string
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time
}

// RefreshConfig holds the OAuth client registration and the user's refresh token.
type RefreshConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	HTTPClient   *http.Client
}

// NewRefreshSource creates a refresh-token source.
func NewRefreshSource(cfg RefreshConfig) *RefreshSource {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RefreshSource{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		tokenURL:     tokenURL,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (s *RefreshSource) Token(ctx context.Context, _ bool) (domain.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", s.refreshToken)
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Token{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.Token{}, &domain.AuthError{Message: "token endpoint unreachable", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Token{}, &domain.AuthError{Message: "failed to read token response", Err: err}
	}

	var tr tokenResponse
	_ = json.Unmarshal(body, &tr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := tr.Error
		if tr.ErrorDescription != "" {
			msg += ": " + tr.ErrorDescription
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return domain.Token{}, &domain.AuthError{Message: fmt.Sprintf("token refresh denied (http %d): %s", resp.StatusCode, msg)}
	}
	if tr.AccessToken == "" {
		return domain.Token{}, &domain.AuthError{Message: "token response carried no access token"}
	}

	tok := domain.Token{AccessToken: tr.AccessToken}
	if tr.ExpiresIn > 0 {
		tok.Expiry = s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok, nil
}
