package publisher

import (
	"context"
	"net/http"
	"time"

	"content-distributor/domain/errs"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/logger"
)

type MediaState int

const (
	MediaPending MediaState = iota
	MediaReady
	MediaFailed
)

type MediaStatus struct {
	State  MediaState
	Detail string
}

// MediaInput is what a MediaProtocol works from.
type MediaInput struct {
	Content *model.ContentItem
	Account *model.Account
	Token   string
	Caption string
	Link    string
}

// MediaHandle carries protocol state between steps. Metadata ends up on the record.
type MediaHandle struct {
	ID       string
	Metadata map[string]string
}

func (h *MediaHandle) set(k, v string) {
	if h.Metadata == nil {
		h.Metadata = make(map[string]string)
	}
	h.Metadata[k] = v
}

// MediaProtocol is the platform-specific part of an upload-then-publish flow.
type MediaProtocol interface {
	// Start creates the upload session or media container and transfers the bytes if the platform needs a push.
	Start(ctx context.Context, in MediaInput) (*MediaHandle, error)
	Status(ctx context.Context, in MediaInput, h *MediaHandle) (MediaStatus, error)
	Publish(ctx context.Context, in MediaInput, h *MediaHandle) (*postResult, error)
	Metrics(ctx context.Context, postID, token string, acct *model.Account) (model.EngagementMetrics, error)
}

type AsyncMediaSpec struct {
	Platform     string
	CaptionLimit int
	PollInterval time.Duration
	PollAttempts int
	RequireVideo bool
}

// AsyncMediaPublisher runs start, a bounded status poll, then publish.
type AsyncMediaPublisher struct {
	spec    AsyncMediaSpec
	proto   MediaProtocol
	tokens  TokenSource
	flow    flow
	siteURL string
}

var _ repository.IPublisher = (*AsyncMediaPublisher)(nil)

func NewAsyncMediaPublisher(spec AsyncMediaSpec, proto MediaProtocol, tokens TokenSource, records repository.IPublishRecord, siteURL string) *AsyncMediaPublisher {
	if spec.PollInterval <= 0 {
		spec.PollInterval = 10 * time.Second
	}
	if spec.PollAttempts <= 0 {
		spec.PollAttempts = 30
	}
	return &AsyncMediaPublisher{spec: spec, proto: proto, tokens: tokens, flow: newFlow(spec.Platform, records), siteURL: siteURL}
}

func (p *AsyncMediaPublisher) Platform() string { return p.spec.Platform }

func (p *AsyncMediaPublisher) Publish(ctx context.Context, content *model.ContentItem, acct *model.Account) (*model.PublishRecord, error) {
	return p.flow.run(ctx, content, acct,
		func(ctx context.Context) (string, error) { return p.tokens.EnsureValidToken(ctx, acct) },
		func(ctx context.Context, token string) (*postResult, error) {
			if p.spec.RequireVideo && !content.HasVideo() {
				return nil, &errs.PlatformRejectedContentError{Platform: p.spec.Platform, Body: "content has no video"}
			}
			link := content.Link(p.siteURL)
			in := MediaInput{
				Content: content,
				Account: acct,
				Token:   token,
				Caption: BuildCaption(content, link, p.spec.CaptionLimit),
				Link:    link,
			}
			h, err := p.proto.Start(ctx, in)
			if err != nil {
				return nil, err
			}
			if err := p.waitReady(ctx, in, h); err != nil {
				return nil, err
			}
			res, err := p.proto.Publish(ctx, in, h)
			if err != nil {
				return nil, err
			}
			if res.Metadata == nil {
				res.Metadata = h.Metadata
			}
			return res, nil
		})
}

// waitReady polls Status at a fixed interval for at most PollAttempts times.
func (p *AsyncMediaPublisher) waitReady(ctx context.Context, in MediaInput, h *MediaHandle) error {
	log := logger.GetLogger().WithField("platform", p.spec.Platform).WithField("media_id", h.ID)
	var last MediaStatus
	for attempt := 1; attempt <= p.spec.PollAttempts; attempt++ {
		st, err := p.proto.Status(ctx, in, h)
		if err != nil {
			return err
		}
		last = st
		switch st.State {
		case MediaReady:
			log.WithField("polls", attempt).Debug("media ready")
			return nil
		case MediaFailed:
			return &errs.MediaProcessingFailedError{Platform: p.spec.Platform, Status: st.Detail, Reason: h.Metadata["fail_reason"]}
		}
		if attempt == p.spec.PollAttempts {
			break
		}
		t := time.NewTimer(p.spec.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return &errs.TransientNetworkError{Platform: p.spec.Platform, Err: ctx.Err()}
		case <-t.C:
		}
	}
	return &errs.ProcessingTimeoutError{Platform: p.spec.Platform, Attempts: p.spec.PollAttempts, LastStatus: last.Detail}
}

func (p *AsyncMediaPublisher) GetMetrics(ctx context.Context, postID string, acct *model.Account) (model.EngagementMetrics, error) {
	token, err := p.tokens.EnsureValidToken(ctx, acct)
	if err != nil {
		return model.EngagementMetrics{}, wrapMetricsErr(p.spec.Platform, postID, err)
	}
	m, err := p.proto.Metrics(ctx, postID, token, acct)
	return m, wrapMetricsErr(p.spec.Platform, postID, err)
}

// mediaDownloader is the client protocols use to fetch the source video.
func mediaDownloader(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 10 * time.Minute}
}
