package model

import "strings"

const (
	PlatformFacebook  = "facebook"
	PlatformLinkedIn  = "linkedin"
	PlatformTwitter   = "twitter"
	PlatformReddit    = "reddit"
	PlatformYouTube   = "youtube"
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformThreads   = "threads"
	PlatformTelegram  = "telegram"
)

// Platforms lists every destination the distributor knows how to publish to.
var Platforms = []string{
	PlatformFacebook,
	PlatformLinkedIn,
	PlatformTwitter,
	PlatformReddit,
	PlatformYouTube,
	PlatformTikTok,
	PlatformInstagram,
	PlatformThreads,
	PlatformTelegram,
}

// NormalizePlatform lower-cases and trims a platform name. "x" is accepted as an alias of twitter.
func NormalizePlatform(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "x" {
		return PlatformTwitter
	}
	return p
}

func IsKnownPlatform(p string) bool {
	p = NormalizePlatform(p)
	for _, known := range Platforms {
		if known == p {
			return true
		}
	}
	return false
}

// RequiresVideo reports whether a platform only accepts video posts.
func RequiresVideo(p string) bool {
	switch NormalizePlatform(p) {
	case PlatformYouTube, PlatformTikTok, PlatformInstagram:
		return true
	}
	return false
}
