package oauth

import (
	"content-distributor/domain/model"
	"content-distributor/infrastructure/configuration"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

var defaultTokenURLs = map[string]string{
	model.PlatformLinkedIn:  "https://www.linkedin.com/oauth/v2/accessToken",
	model.PlatformTwitter:   "https://api.x.com/2/oauth2/token",
	model.PlatformReddit:    "https://www.reddit.com/api/v1/access_token",
	model.PlatformTikTok:    "https://open.tiktokapis.com/v2/oauth/token/",
	model.PlatformInstagram: "https://api.instagram.com/oauth/access_token",
	model.PlatformThreads:   "https://graph.threads.net/oauth/access_token",
}

var defaultAuthURLs = map[string]string{
	model.PlatformLinkedIn:  "https://www.linkedin.com/oauth/v2/authorization",
	model.PlatformTwitter:   "https://x.com/i/oauth2/authorize",
	model.PlatformReddit:    "https://www.reddit.com/api/v1/authorize",
	model.PlatformTikTok:    "https://www.tiktok.com/v2/auth/authorize/",
	model.PlatformInstagram: "https://www.instagram.com/oauth/authorize",
	model.PlatformThreads:   "https://threads.net/oauth/authorize",
}

// ClientsFromConfig builds one oauth2.Config per platform that has a client id configured.
func ClientsFromConfig(cfg map[string]configuration.OAuthClient) map[string]*oauth2.Config {
	out := make(map[string]*oauth2.Config, len(cfg))
	for name, c := range cfg {
		platform := model.NormalizePlatform(name)
		if c.ClientID == "" {
			continue
		}
		conf := &oauth2.Config{ClientID: c.ClientID, ClientSecret: c.ClientSecret, RedirectURL: c.RedirectURL}
		switch {
		case c.TokenURL != "":
			conf.Endpoint = oauth2.Endpoint{TokenURL: c.TokenURL, AuthURL: c.AuthURL}
		case platform == model.PlatformYouTube:
			conf.Endpoint = google.Endpoint
			conf.Scopes = []string{youtube.YoutubeUploadScope, youtube.YoutubeScope}
		default:
			conf.Endpoint = oauth2.Endpoint{TokenURL: defaultTokenURLs[platform], AuthURL: defaultAuthURLs[platform]}
		}
		if c.AuthURL != "" {
			conf.Endpoint.AuthURL = c.AuthURL
		}
		if len(c.Scopes) > 0 {
			conf.Scopes = c.Scopes
		}
		if platform == model.PlatformReddit {
			conf.Endpoint.AuthStyle = oauth2.AuthStyleInHeader
		}
		if conf.Endpoint.TokenURL == "" {
			continue
		}
		out[platform] = conf
	}
	return out
}
