package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/logger"

	"golang.org/x/oauth2"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrNoOAuthClient = errors.New("platform has no oauth client configured")
)

const reconnectStateTTL = 10 * time.Minute

// StateStore remembers which account a pending authorization is for.
type StateStore interface {
	Save(ctx context.Context, state string, accountID int64, ttl time.Duration) error
	Take(ctx context.Context, state string) (int64, error)
}

type IAccountUsecase interface {
	// ReconnectURL starts a fresh authorization for an account whose grant was lost.
	ReconnectURL(ctx context.Context, userID string, accountID int64) (string, error)
	// CompleteReconnect exchanges the callback code and stores the new token bundle.
	CompleteReconnect(ctx context.Context, state, code string) (*model.Account, error)
}

type accountUsecase struct {
	accounts repository.IAccount
	clients  map[string]*oauth2.Config
	states   StateStore
}

func NewAccountUsecase(accounts repository.IAccount, clients map[string]*oauth2.Config, states StateStore) IAccountUsecase {
	return &accountUsecase{accounts: accounts, clients: clients, states: states}
}

func (u *accountUsecase) ReconnectURL(ctx context.Context, userID string, accountID int64) (string, error) {
	acct, err := u.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acct.UserID == nil || *acct.UserID != userID {
		return "", fmt.Errorf("%w: account belongs to another user", ErrForbidden)
	}
	conf, ok := u.clients[model.NormalizePlatform(acct.Platform)]
	if !ok || conf.Endpoint.AuthURL == "" {
		return "", fmt.Errorf("%w: %s", ErrNoOAuthClient, acct.Platform)
	}
	state, err := randomState()
	if err != nil {
		return "", err
	}
	if err := u.states.Save(ctx, state, acct.ID, reconnectStateTTL); err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

func (u *accountUsecase) CompleteReconnect(ctx context.Context, state, code string) (*model.Account, error) {
	if state == "" || code == "" {
		return nil, fmt.Errorf("%w: state and code required", ErrInvalidRequest)
	}
	accountID, err := u.states.Take(ctx, state)
	if err != nil {
		return nil, err
	}
	acct, err := u.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	conf, ok := u.clients[model.NormalizePlatform(acct.Platform)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOAuthClient, acct.Platform)
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code for account %d: %w", acct.ID, err)
	}

	creds := model.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if creds.RefreshToken == "" {
		creds.RefreshToken = acct.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		creds.ExpiresAt = &exp
	}
	if err := u.accounts.UpdateCredentials(ctx, acct.ID, creds); err != nil {
		return nil, err
	}
	acct.AccessToken, acct.RefreshToken, acct.TokenExpiresAt = creds.AccessToken, creds.RefreshToken, creds.ExpiresAt
	logger.GetLogger().WithField("account_id", acct.ID).WithField("platform", acct.Platform).Info("account reconnected")
	return acct, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
