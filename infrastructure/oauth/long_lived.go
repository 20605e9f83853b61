package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"content-distributor/domain/model"

	"golang.org/x/oauth2"
)

type extension struct {
	grant string
	url   string
}

// longLived lists platforms whose long-lived tokens are extended by presenting
// the current access token rather than a refresh token.
var longLived = map[string]extension{
	model.PlatformInstagram: {grant: "ig_refresh_token", url: "https://graph.instagram.com/refresh_access_token"},
	model.PlatformThreads:   {grant: "th_refresh_token", url: "https://graph.threads.net/refresh_access_token"},
}

// WithExtendURL points the long-lived token extension of platform at endpoint.
func WithExtendURL(platform, endpoint string) Option {
	return func(m *TokenManager) {
		if ext, ok := m.extensions[platform]; ok && endpoint != "" {
			ext.url = endpoint
			m.extensions[platform] = ext
		}
	}
}

type longLivedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// extend calls GET {url}?grant_type=...&access_token=... and returns the new
// token. Failures mirror oauth2's so classifyRefreshError applies unchanged; the
// request URL is cut back to ext.url because it carries the access token.
func (m *TokenManager) extend(ctx context.Context, ext extension, acct *model.Account) (*oauth2.Token, error) {
	tokenURL := ext.url
	u, err := url.Parse(tokenURL)
	if err != nil {
		return nil, fmt.Errorf("parse token url for %s: %w", acct.Platform, err)
	}
	q := u.Query()
	q.Set("grant_type", ext.grant)
	q.Set("access_token", acct.AccessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	client := m.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = tokenURL
		}
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &url.Error{Op: "Get", URL: tokenURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &oauth2.RetrieveError{Response: resp, Body: body}
	}

	var out longLivedToken
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode %s token response: %w", acct.Platform, err)
	}
	if out.AccessToken == "" {
		return nil, &oauth2.RetrieveError{Response: resp, Body: body, ErrorCode: "missing_access_token"}
	}
	tok := &oauth2.Token{AccessToken: out.AccessToken, TokenType: out.TokenType}
	if out.ExpiresIn > 0 {
		tok.Expiry = m.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return tok, nil
}
