package publisher

import (
	"context"
	"fmt"

	"content-distributor/domain/errs"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
)

// BodyEncoding selects how a simple post is sent.
type BodyEncoding int

const (
	EncodeJSON BodyEncoding = iota
	EncodeForm
)

// PostInput is everything a simple-post spec needs to build its request.
type PostInput struct {
	Content *model.ContentItem
	Account *model.Account
	Caption string
	Link    string
	Token   string
}

// SimplePostSpec parameterizes a single-request publish.
type SimplePostSpec struct {
	Platform     string
	CaptionLimit int
	Encoding     BodyEncoding
	Headers      map[string]string
	// Endpoint returns the post path relative to the API base URL.
	Endpoint func(acct *model.Account) (string, error)
	// Body returns a JSON-marshalable value, or a struct with `url` tags for forms.
	Body func(in PostInput) any
	// Decode allocates the response value passed to PostID.
	Decode    func() any
	PostID    func(resp any) (string, error)
	PublicURL func(postID string, in PostInput) string
	Metrics   func(ctx context.Context, api *apiClient, postID, token string, acct *model.Account) (model.EngagementMetrics, error)
}

// SimplePoster publishes with one HTTP request per post.
type SimplePoster struct {
	spec    SimplePostSpec
	api     *apiClient
	tokens  TokenSource
	flow    flow
	siteURL string
}

var _ repository.IPublisher = (*SimplePoster)(nil)

func NewSimplePoster(spec SimplePostSpec, api *apiClient, tokens TokenSource, records repository.IPublishRecord, siteURL string) *SimplePoster {
	return &SimplePoster{spec: spec, api: api, tokens: tokens, flow: newFlow(spec.Platform, records), siteURL: siteURL}
}

func (p *SimplePoster) Platform() string { return p.spec.Platform }

func (p *SimplePoster) Publish(ctx context.Context, content *model.ContentItem, acct *model.Account) (*model.PublishRecord, error) {
	return p.flow.run(ctx, content, acct,
		func(ctx context.Context) (string, error) { return p.tokens.EnsureValidToken(ctx, acct) },
		func(ctx context.Context, token string) (*postResult, error) {
			link := content.Link(p.siteURL)
			in := PostInput{
				Content: content,
				Account: acct,
				Caption: BuildCaption(content, link, p.spec.CaptionLimit),
				Link:    link,
				Token:   token,
			}
			path, err := p.spec.Endpoint(acct)
			if err != nil {
				return nil, err
			}
			out := p.spec.Decode()
			if err := p.send(ctx, path, in, out); err != nil {
				return nil, err
			}
			postID, err := p.spec.PostID(out)
			if err != nil {
				return nil, err
			}
			return &postResult{PostID: postID, PublicURL: p.spec.PublicURL(postID, in)}, nil
		})
}

func (p *SimplePoster) send(ctx context.Context, path string, in PostInput, out any) error {
	body := p.spec.Body(in)
	switch p.spec.Encoding {
	case EncodeForm:
		form, err := formValues(body)
		if err != nil {
			return fmt.Errorf("encode %s form: %w", p.spec.Platform, err)
		}
		return p.api.postForm(ctx, path, in.Token, form, out)
	default:
		_, err := p.api.postJSON(ctx, path, in.Token, body, p.spec.Headers, out)
		return err
	}
}

func (p *SimplePoster) GetMetrics(ctx context.Context, postID string, acct *model.Account) (model.EngagementMetrics, error) {
	if p.spec.Metrics == nil {
		return model.EngagementMetrics{}, nil
	}
	token, err := p.tokens.EnsureValidToken(ctx, acct)
	if err != nil {
		return model.EngagementMetrics{}, wrapMetricsErr(p.spec.Platform, postID, err)
	}
	m, err := p.spec.Metrics(ctx, p.api, postID, token, acct)
	return m, wrapMetricsErr(p.spec.Platform, postID, err)
}

func missingMeta(platform, key string) error {
	return &errs.PlatformRejectedContentError{Platform: platform, Body: fmt.Sprintf("account metadata is missing %q", key)}
}

func emptyID(platform string) error {
	return &errs.PlatformRejectedContentError{Platform: platform, StatusCode: 200, Body: "response carried no post id"}
}
