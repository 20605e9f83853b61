package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"content-distributor/domain/errs"
	"content-distributor/domain/model"
	"content-distributor/infrastructure/configuration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	args := m.Called(ctx, id)
	if a := args.Get(0); a != nil {
		return a.(*model.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccountRepository) ListAutoPublish(ctx context.Context, scope model.AccountScope) ([]*model.Account, error) {
	args := m.Called(ctx, scope)
	return args.Get(0).([]*model.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateCredentials(ctx context.Context, id int64, creds model.Credentials) error {
	return m.Called(ctx, id, creds).Error(0)
}

type stubLocker struct{ calls int }

func (l *stubLocker) Lock(context.Context, string) (func(), error) {
	l.calls++
	return func() {}, nil
}

func tokenServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func clientsFor(srv *httptest.Server) map[string]*oauth2.Config {
	return map[string]*oauth2.Config{
		model.PlatformLinkedIn: {
			ClientID:     "client",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
		},
	}
}

func expiringAccount(in time.Duration, refresh string) *model.Account {
	exp := time.Now().Add(in)
	return &model.Account{ID: 7, Platform: model.PlatformLinkedIn, AccessToken: "old", RefreshToken: refresh, TokenExpiresAt: &exp}
}

func TestEnsureValidToken_NilExpiryIsLongLived(t *testing.T) {
	repo := new(MockAccountRepository)
	m := NewTokenManager(repo, nil)

	token, err := m.EnsureValidToken(context.Background(), &model.Account{ID: 1, Platform: model.PlatformFacebook, AccessToken: "page-token"})
	require.NoError(t, err)
	assert.Equal(t, "page-token", token)
	repo.AssertNotCalled(t, "UpdateCredentials", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureValidToken_FreshTokenSkipsRefresh(t *testing.T) {
	srv, hits := tokenServer(t, http.StatusOK, `{}`)
	m := NewTokenManager(new(MockAccountRepository), clientsFor(srv))

	token, err := m.EnsureValidToken(context.Background(), expiringAccount(time.Hour, "rt"))
	require.NoError(t, err)
	assert.Equal(t, "old", token)
	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestEnsureValidToken_RefreshesInsideMargin(t *testing.T) {
	srv, hits := tokenServer(t, http.StatusOK, `{"access_token":"new","refresh_token":"rt-2","expires_in":3600,"token_type":"bearer"}`)
	repo := new(MockAccountRepository)
	repo.On("UpdateCredentials", mock.Anything, int64(7), mock.MatchedBy(func(c model.Credentials) bool {
		return c.AccessToken == "new" && c.RefreshToken == "rt-2" && c.ExpiresAt != nil
	})).Return(nil).Once()

	m := NewTokenManager(repo, clientsFor(srv), WithMargin(5*time.Minute), WithHTTPClient(srv.Client()))
	acct := expiringAccount(2*time.Minute, "rt-1")

	token, err := m.EnsureValidToken(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "new", token)
	assert.Equal(t, "rt-2", acct.RefreshToken)
	assert.True(t, acct.TokenExpiresAt.After(time.Now().Add(50*time.Minute)))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	repo.AssertExpectations(t)
}

func TestEnsureValidToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusOK, `{"access_token":"new","expires_in":3600,"token_type":"bearer"}`)
	repo := new(MockAccountRepository)
	repo.On("UpdateCredentials", mock.Anything, int64(7), mock.MatchedBy(func(c model.Credentials) bool {
		return c.RefreshToken == "rt-1"
	})).Return(nil).Once()

	m := NewTokenManager(repo, clientsFor(srv))
	_, err := m.EnsureValidToken(context.Background(), expiringAccount(-time.Minute, "rt-1"))
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestEnsureValidToken_RejectedRefreshIsTokenExpired(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"revoked"}`)
	repo := new(MockAccountRepository)
	m := NewTokenManager(repo, clientsFor(srv))

	_, err := m.EnsureValidToken(context.Background(), expiringAccount(-time.Minute, "rt-1"))
	require.Error(t, err)
	var expired *errs.TokenExpiredError
	require.True(t, errors.As(err, &expired))
	assert.Equal(t, "invalid_grant", expired.Reason)
	assert.True(t, errs.IsNonRetryable(err))
	repo.AssertNotCalled(t, "UpdateCredentials", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureValidToken_ServerErrorIsTransient(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusServiceUnavailable, `{"error":"temporarily_unavailable"}`)
	m := NewTokenManager(new(MockAccountRepository), clientsFor(srv))

	_, err := m.EnsureValidToken(context.Background(), expiringAccount(-time.Minute, "rt-1"))
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.False(t, errs.IsNonRetryable(err))
}

func TestEnsureValidToken_MissingRefreshTokenOrClient(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusOK, `{}`)
	m := NewTokenManager(new(MockAccountRepository), clientsFor(srv))

	_, err := m.EnsureValidToken(context.Background(), expiringAccount(-time.Minute, ""))
	assert.True(t, errs.IsNonRetryable(err))

	acct := expiringAccount(-time.Minute, "rt")
	acct.Platform = model.PlatformTikTok
	_, err = m.EnsureValidToken(context.Background(), acct)
	assert.True(t, errs.IsNonRetryable(err))
}

func TestEnsureValidToken_ReusesTokenRefreshedByAnotherWorker(t *testing.T) {
	srv, hits := tokenServer(t, http.StatusOK, `{"access_token":"unused"}`)
	later := time.Now().Add(time.Hour)
	repo := new(MockAccountRepository)
	repo.On("GetByID", mock.Anything, int64(7)).
		Return(&model.Account{ID: 7, Platform: model.PlatformLinkedIn, AccessToken: "from-peer", RefreshToken: "rt-peer", TokenExpiresAt: &later}, nil).Once()

	locker := &stubLocker{}
	m := NewTokenManager(repo, clientsFor(srv), WithLocker(locker))
	acct := expiringAccount(-time.Minute, "rt-1")

	token, err := m.EnsureValidToken(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "from-peer", token)
	assert.Equal(t, "rt-peer", acct.RefreshToken)
	assert.Equal(t, 1, locker.calls)
	assert.Zero(t, atomic.LoadInt32(hits))
	repo.AssertExpectations(t)
}

func TestClientsFromConfig(t *testing.T) {
	clients := ClientsFromConfig(map[string]configuration.OAuthClient{
		"youtube":  {ClientID: "yt", ClientSecret: "s"},
		"x":        {ClientID: "tw", ClientSecret: "s"},
		"reddit":   {ClientID: "rd", ClientSecret: "s"},
		"linkedin": {ClientID: "", ClientSecret: "s"},
		"custom":   {ClientID: "c"},
	})
	require.Contains(t, clients, model.PlatformYouTube)
	assert.Equal(t, "https://oauth2.googleapis.com/token", clients[model.PlatformYouTube].Endpoint.TokenURL)
	require.Contains(t, clients, model.PlatformTwitter)
	assert.Equal(t, oauth2.AuthStyleInHeader, clients[model.PlatformReddit].Endpoint.AuthStyle)
	assert.NotContains(t, clients, model.PlatformLinkedIn)
	assert.NotContains(t, clients, "custom")
	assert.Equal(t, "https://x.com/i/oauth2/authorize", clients[model.PlatformTwitter].Endpoint.AuthURL)
}

func TestClientsFromConfigOverrides(t *testing.T) {
	clients := ClientsFromConfig(map[string]configuration.OAuthClient{
		"threads": {
			ClientID:    "th",
			TokenURL:    "https://auth.example.com/token",
			AuthURL:     "https://auth.example.com/authorize",
			RedirectURL: "https://distributor.example.com/auth/threads/callback",
			Scopes:      []string{"threads_basic", "threads_content_publish"},
		},
	})
	conf := clients[model.PlatformThreads]
	require.NotNil(t, conf)
	assert.Equal(t, "https://auth.example.com/token", conf.Endpoint.TokenURL)
	assert.Equal(t, "https://auth.example.com/authorize", conf.Endpoint.AuthURL)
	assert.Equal(t, "https://distributor.example.com/auth/threads/callback", conf.RedirectURL)
	assert.Equal(t, []string{"threads_basic", "threads_content_publish"}, conf.Scopes)
}
