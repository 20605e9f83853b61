package publisher

import (
	"testing"
	"time"

	"content-distributor/domain/model"
	"content-distributor/infrastructure/configuration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRegistry(t *testing.T) {
	settings := Settings{
		SiteBaseURL: "https://blog.example.com",
		Platforms: map[string]configuration.Platform{
			model.PlatformTwitter: {RateLimit: 1, Burst: 2},
		},
	}
	reg, err := Build(settings, Deps{Records: newMemoryRecords(), Tokens: &staticTokens{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"facebook", "instagram", "linkedin", "reddit", "threads", "tiktok", "twitter", "youtube"}, reg.Platforms())

	pub, ok := reg.Get(" X ")
	require.True(t, ok)
	assert.Equal(t, model.PlatformTwitter, pub.Platform())

	_, ok = reg.Get(model.PlatformTelegram)
	assert.False(t, ok)
}

func TestBuildRegistryWithBot(t *testing.T) {
	settings := Settings{Bot: BotAPISpec{Token: "123:abc", ChannelID: "@mychannel", APIURL: "https://api.telegram.org"}}
	reg, err := Build(settings, Deps{Records: newMemoryRecords(), Tokens: &staticTokens{}})
	require.NoError(t, err)

	pub, ok := reg.Get(model.PlatformTelegram)
	require.True(t, ok)
	assert.IsType(t, &TelegramPublisher{}, pub)
	assert.Len(t, reg.Platforms(), len(model.Platforms))
}

func TestRequestTimeoutIsCappedBelowAttempt(t *testing.T) {
	defaults := configuration.DefaultPlatforms()
	assert.Equal(t, time.Minute, requestTimeout(defaults[model.PlatformFacebook]))
	assert.Equal(t, maxRequestTimeout, requestTimeout(defaults[model.PlatformInstagram]))
	assert.Equal(t, time.Minute, Settings{}.platform(model.PlatformReddit).Timeout)
}
