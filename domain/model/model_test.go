package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePlatform(t *testing.T) {
	assert.Equal(t, PlatformTwitter, NormalizePlatform(" X "))
	assert.Equal(t, PlatformLinkedIn, NormalizePlatform("LinkedIn"))
	assert.True(t, IsKnownPlatform("Telegram"))
	assert.False(t, IsKnownPlatform("myspace"))
}

func TestRequiresVideo(t *testing.T) {
	assert.True(t, RequiresVideo("youtube"))
	assert.True(t, RequiresVideo("instagram"))
	assert.False(t, RequiresVideo("threads"))
	assert.False(t, RequiresVideo("facebook"))
}

func TestContentLink(t *testing.T) {
	c := &ContentItem{Slug: "/hello-world"}
	assert.Equal(t, "https://blog.example.com/hello-world", c.Link("https://blog.example.com/"))
	assert.Empty(t, c.Link(""))

	c.CanonicalURL = "https://example.com/canonical"
	assert.Equal(t, "https://example.com/canonical", c.Link("https://blog.example.com"))
}

func TestPublishStatusTerminal(t *testing.T) {
	assert.False(t, PublishStatusProcessing.Terminal())
	assert.True(t, PublishStatusPublished.Terminal())
	assert.True(t, PublishStatusSkippedExpiredCredentials.Terminal())
}

func TestAccountMeta(t *testing.T) {
	var nilAcct *Account
	assert.Empty(t, nilAcct.Meta(MetaPageID))
	a := &Account{Metadata: map[string]string{MetaPageID: "123"}}
	assert.Equal(t, "123", a.Meta(MetaPageID))
}
