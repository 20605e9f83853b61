package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"content-distributor/domain/errs"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/logger"

	"golang.org/x/oauth2"
)

// DefaultRefreshMargin is how long before expiry a token is treated as stale.
const DefaultRefreshMargin = 5 * time.Minute

// Locker serializes refreshes of one account across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Observer is told about every refresh attempt.
type Observer interface {
	TokenRefreshed(platform, outcome string)
}

// TokenManager hands out usable access tokens, refreshing them through the
// platform's OAuth token endpoint when they are about to expire. Instagram and
// Threads tokens are extended with the current access token instead.
type TokenManager struct {
	accounts   repository.IAccount
	clients    map[string]*oauth2.Config
	margin     time.Duration
	httpClient *http.Client
	locker     Locker
	now        func() time.Time
	observer   Observer
	extensions map[string]extension
}

type Option func(*TokenManager)

func WithMargin(d time.Duration) Option {
	return func(m *TokenManager) {
		if d > 0 {
			m.margin = d
		}
	}
}

// WithHTTPClient sets the client used to reach token endpoints.
func WithHTTPClient(c *http.Client) Option { return func(m *TokenManager) { m.httpClient = c } }

func WithLocker(l Locker) Option { return func(m *TokenManager) { m.locker = l } }

func WithClock(now func() time.Time) Option { return func(m *TokenManager) { m.now = now } }

func WithObserver(o Observer) Option { return func(m *TokenManager) { m.observer = o } }

func NewTokenManager(accounts repository.IAccount, clients map[string]*oauth2.Config, opts ...Option) *TokenManager {
	m := &TokenManager{
		accounts:   accounts,
		clients:    clients,
		margin:     DefaultRefreshMargin,
		now:        time.Now,
		extensions: make(map[string]extension, len(longLived)),
	}
	for platform, ext := range longLived {
		m.extensions[platform] = ext
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureValidToken returns an access token for acct that stays valid for at
// least the refresh margin. A refreshed bundle is persisted and copied into acct.
func (m *TokenManager) EnsureValidToken(ctx context.Context, acct *model.Account) (string, error) {
	if acct == nil {
		return "", errors.New("oauth: nil account")
	}
	if acct.AccessToken == "" && acct.RefreshToken == "" {
		return "", &errs.TokenExpiredError{Platform: acct.Platform, AccountID: acct.ID, Reason: "account has no credentials"}
	}
	if m.fresh(acct) {
		return acct.AccessToken, nil
	}

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, fmt.Sprintf("token:%d", acct.ID))
		if err != nil {
			logger.GetLogger().WithField("account_id", acct.ID).WithField("error", err).Warn("refresh lock unavailable; refreshing without it")
		} else {
			defer unlock()
			latest, err := m.accounts.GetByID(ctx, acct.ID)
			if err == nil && m.fresh(latest) {
				copyCredentials(acct, latest)
				m.report(acct.Platform, "reused")
				return acct.AccessToken, nil
			}
			if err == nil {
				copyCredentials(acct, latest)
			}
		}
	}
	return m.refresh(ctx, acct)
}

func (m *TokenManager) fresh(acct *model.Account) bool {
	if acct.AccessToken == "" {
		return false
	}
	if acct.TokenExpiresAt == nil {
		return true
	}
	return acct.TokenExpiresAt.After(m.now().Add(m.margin))
}

func (m *TokenManager) refresh(ctx context.Context, acct *model.Account) (string, error) {
	log := logger.GetLogger().WithField("account_id", acct.ID).WithField("platform", acct.Platform)
	var tok *oauth2.Token
	var err error
	if ext, ok := m.extensions[acct.Platform]; ok {
		if acct.AccessToken == "" {
			m.report(acct.Platform, "expired")
			return "", &errs.TokenExpiredError{Platform: acct.Platform, AccountID: acct.ID, Reason: "no access token to extend"}
		}
		tok, err = m.extend(ctx, ext, acct)
	} else {
		if acct.RefreshToken == "" {
			m.report(acct.Platform, "expired")
			return "", &errs.TokenExpiredError{Platform: acct.Platform, AccountID: acct.ID, Reason: "token expired and no refresh token is stored"}
		}
		conf, ok := m.clients[acct.Platform]
		if !ok || conf == nil {
			m.report(acct.Platform, "expired")
			return "", &errs.TokenExpiredError{Platform: acct.Platform, AccountID: acct.ID, Reason: "no oauth client configured for platform"}
		}
		if m.httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
		}
		tok, err = conf.TokenSource(ctx, &oauth2.Token{RefreshToken: acct.RefreshToken}).Token()
	}
	if err != nil {
		rerr := classifyRefreshError(acct, err)
		if errs.IsNonRetryable(rerr) {
			m.report(acct.Platform, "expired")
		} else {
			m.report(acct.Platform, "error")
		}
		log.WithField("error", err).Warn("token refresh failed")
		return "", rerr
	}

	creds := model.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if creds.RefreshToken == "" {
		creds.RefreshToken = acct.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		creds.ExpiresAt = &exp
	}
	if err := m.accounts.UpdateCredentials(ctx, acct.ID, creds); err != nil {
		m.report(acct.Platform, "error")
		return "", fmt.Errorf("persist refreshed token for account %d: %w", acct.ID, err)
	}
	acct.AccessToken = creds.AccessToken
	acct.RefreshToken = creds.RefreshToken
	acct.TokenExpiresAt = creds.ExpiresAt
	m.report(acct.Platform, "refreshed")
	log.Info("access token refreshed")
	return acct.AccessToken, nil
}

// classifyRefreshError maps a token endpoint failure: unreachable endpoint or
// 5xx is transient, any other rejection means the grant is gone.
func classifyRefreshError(acct *model.Account, err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &errs.TransientNetworkError{Platform: acct.Platform, Err: err}
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode >= http.StatusInternalServerError {
		return &errs.TransientNetworkError{Platform: acct.Platform, StatusCode: rerr.Response.StatusCode, Err: err}
	}
	reason := "refresh rejected"
	if rerr != nil && rerr.ErrorCode != "" {
		reason = rerr.ErrorCode
	}
	return &errs.TokenExpiredError{Platform: acct.Platform, AccountID: acct.ID, Reason: reason, Err: err}
}

func copyCredentials(dst, src *model.Account) {
	dst.AccessToken = src.AccessToken
	dst.RefreshToken = src.RefreshToken
	dst.TokenExpiresAt = src.TokenExpiresAt
}

func (m *TokenManager) report(platform, outcome string) {
	if m.observer != nil {
		m.observer.TokenRefreshed(platform, outcome)
	}
}
