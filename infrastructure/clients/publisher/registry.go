package publisher

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/configuration"
)

const maxRequestTimeout = 2 * time.Minute

var defaultBaseURLs = map[string]string{
	model.PlatformFacebook:  "https://graph.facebook.com",
	model.PlatformLinkedIn:  "https://api.linkedin.com",
	model.PlatformTwitter:   "https://api.x.com",
	model.PlatformReddit:    "https://oauth.reddit.com",
	model.PlatformTikTok:    "https://open.tiktokapis.com",
	model.PlatformInstagram: "https://graph.facebook.com",
	model.PlatformThreads:   "https://graph.threads.net",
}

// Registry resolves a platform name to its adapter.
type Registry struct {
	publishers map[string]repository.IPublisher
}

func NewRegistry(pubs ...repository.IPublisher) *Registry {
	r := &Registry{publishers: make(map[string]repository.IPublisher, len(pubs))}
	for _, p := range pubs {
		r.publishers[p.Platform()] = p
	}
	return r
}

func (r *Registry) Get(platform string) (repository.IPublisher, bool) {
	p, ok := r.publishers[model.NormalizePlatform(platform)]
	return p, ok
}

// Platforms returns the registered platform names, sorted.
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type Settings struct {
	SiteBaseURL string
	Platforms   map[string]configuration.Platform
	Bot         BotAPISpec
}

type Deps struct {
	Records repository.IPublishRecord
	Tokens  TokenSource
	// HTTP supplies the base transport; nil uses http.DefaultTransport.
	HTTP *http.Client
}

func (s Settings) platform(name string) configuration.Platform {
	p := s.Platforms[name]
	if p.BaseURL == "" {
		p.BaseURL = defaultBaseURLs[name]
	}
	if p.Timeout <= 0 {
		p.Timeout = time.Minute
	}
	return p
}

// requestTimeout bounds one HTTP call; the attempt as a whole is bounded by Timeout.
func requestTimeout(p configuration.Platform) time.Duration {
	if p.Timeout > maxRequestTimeout {
		return maxRequestTimeout
	}
	return p.Timeout
}

// Build wires all adapters. Telegram is included only when the bot is configured.
func Build(s Settings, d Deps) (*Registry, error) {
	client := func(name string) *apiClient {
		p := s.platform(name)
		return newAPIClient(name, p.BaseURL, newHTTPClient(d.HTTP, requestTimeout(p), p.RateLimit, p.Burst))
	}
	download := newHTTPClient(d.HTTP, 10*time.Minute, 0, 0)

	pubs := []repository.IPublisher{
		NewSimplePoster(FacebookSpec(), client(model.PlatformFacebook), d.Tokens, d.Records, s.SiteBaseURL),
		NewSimplePoster(LinkedInSpec(), client(model.PlatformLinkedIn), d.Tokens, d.Records, s.SiteBaseURL),
		NewSimplePoster(TwitterSpec(), client(model.PlatformTwitter), d.Tokens, d.Records, s.SiteBaseURL),
		NewSimplePoster(RedditSpec(), client(model.PlatformReddit), d.Tokens, d.Records, s.SiteBaseURL),
	}

	media := func(name string, requireVideo bool, captionLimit int, proto MediaProtocol) repository.IPublisher {
		p := s.platform(name)
		return NewAsyncMediaPublisher(AsyncMediaSpec{
			Platform:     name,
			CaptionLimit: captionLimit,
			PollInterval: p.PollInterval,
			PollAttempts: p.PollAttempts,
			RequireVideo: requireVideo,
		}, proto, d.Tokens, d.Records, s.SiteBaseURL)
	}
	tiktok := s.platform(model.PlatformTikTok)
	yt := s.Platforms[model.PlatformYouTube]
	ytTimeout := yt.Timeout
	if ytTimeout <= 0 {
		ytTimeout = 10 * time.Minute
	}
	pubs = append(pubs,
		media(model.PlatformYouTube, true, 5000,
			NewYouTubeProtocol(yt.BaseURL, newHTTPClient(d.HTTP, ytTimeout, yt.RateLimit, yt.Burst), download, yt.ChunkSize)),
		media(model.PlatformTikTok, true, 2200,
			NewTikTokProtocol(client(model.PlatformTikTok), download, tiktok.ChunkSize)),
		media(model.PlatformInstagram, true, 2200,
			NewGraphContainerProtocol(InstagramContainerSpec(), client(model.PlatformInstagram))),
		media(model.PlatformThreads, false, 500,
			NewGraphContainerProtocol(ThreadsContainerSpec(), client(model.PlatformThreads))),
	)

	if s.Bot.Configured() {
		tp := s.platform(model.PlatformTelegram)
		tg, err := NewTelegramPublisher(s.Bot, newHTTPClient(d.HTTP, requestTimeout(tp), tp.RateLimit, tp.Burst), d.Records, s.SiteBaseURL)
		if err != nil {
			return nil, fmt.Errorf("telegram publisher: %w", err)
		}
		pubs = append(pubs, tg)
	}
	return NewRegistry(pubs...), nil
}
