package publisher

import (
	"context"
	"fmt"
	"net/url"

	"content-distributor/domain/model"
)

// GraphContainerSpec describes a Meta-style "create container, poll, publish" API.
type GraphContainerSpec struct {
	Platform    string
	Version     string
	UserMetaKey string
	MediaPath   string
	PublishPath string
	VideoType   string
	// TextType is used when the content has no video; empty means video is mandatory.
	TextType     string
	CaptionField string
	StatusField  string
	// CommentsMetric names the insights metric counted as comments.
	CommentsMetric string
}

func InstagramContainerSpec() GraphContainerSpec {
	return GraphContainerSpec{
		Platform:       model.PlatformInstagram,
		Version:        graphVersion,
		UserMetaKey:    model.MetaInstagramUser,
		MediaPath:      "media",
		PublishPath:    "media_publish",
		VideoType:      "REELS",
		CaptionField:   "caption",
		StatusField:    "status_code",
		CommentsMetric: "comments",
	}
}

func ThreadsContainerSpec() GraphContainerSpec {
	return GraphContainerSpec{
		Platform:       model.PlatformThreads,
		Version:        "v1.0",
		UserMetaKey:    model.MetaThreadsUser,
		MediaPath:      "threads",
		PublishPath:    "threads_publish",
		VideoType:      "VIDEO",
		TextType:       "TEXT",
		CaptionField:   "text",
		StatusField:    "status",
		CommentsMetric: "replies",
	}
}

// GraphContainerProtocol implements MediaProtocol for Instagram Reels and Threads.
type GraphContainerProtocol struct {
	spec GraphContainerSpec
	api  *apiClient
}

func NewGraphContainerProtocol(spec GraphContainerSpec, api *apiClient) *GraphContainerProtocol {
	return &GraphContainerProtocol{spec: spec, api: api}
}

type graphID struct {
	ID string `json:"id"`
}

func (p *GraphContainerProtocol) path(parts ...string) string {
	out := "/" + p.spec.Version
	for _, part := range parts {
		out += "/" + url.PathEscape(part)
	}
	return out
}

func (p *GraphContainerProtocol) Start(ctx context.Context, in MediaInput) (*MediaHandle, error) {
	user := in.Account.Meta(p.spec.UserMetaKey)
	if user == "" {
		return nil, missingMeta(p.spec.Platform, p.spec.UserMetaKey)
	}
	form := url.Values{}
	form.Set(p.spec.CaptionField, in.Caption)
	if in.Content.HasVideo() {
		form.Set("media_type", p.spec.VideoType)
		form.Set("video_url", in.Content.VideoURL)
	} else {
		form.Set("media_type", p.spec.TextType)
	}
	var out graphID
	if err := p.api.postForm(ctx, p.path(user, p.spec.MediaPath), in.Token, form, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, emptyID(p.spec.Platform)
	}
	h := &MediaHandle{ID: out.ID}
	h.set("container_id", out.ID)
	return h, nil
}

func (p *GraphContainerProtocol) Status(ctx context.Context, in MediaInput, h *MediaHandle) (MediaStatus, error) {
	var out map[string]any
	params := url.Values{}
	params.Set("fields", p.spec.StatusField+",error_message")
	if err := p.api.getJSON(ctx, p.path(h.ID), params, in.Token, &out); err != nil {
		return MediaStatus{}, err
	}
	st, _ := out[p.spec.StatusField].(string)
	switch st {
	case "FINISHED", "PUBLISHED":
		return MediaStatus{State: MediaReady, Detail: st}, nil
	case "ERROR", "EXPIRED":
		if msg, ok := out["error_message"].(string); ok {
			h.set("fail_reason", msg)
		}
		return MediaStatus{State: MediaFailed, Detail: st}, nil
	}
	return MediaStatus{State: MediaPending, Detail: st}, nil
}

func (p *GraphContainerProtocol) Publish(ctx context.Context, in MediaInput, h *MediaHandle) (*postResult, error) {
	user := in.Account.Meta(p.spec.UserMetaKey)
	form := url.Values{}
	form.Set("creation_id", h.ID)
	var out graphID
	if err := p.api.postForm(ctx, p.path(user, p.spec.PublishPath), in.Token, form, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, emptyID(p.spec.Platform)
	}
	return &postResult{PostID: out.ID, PublicURL: p.permalink(ctx, out.ID, in.Token), Metadata: h.Metadata}, nil
}

// permalink is best effort; a post without one is still published.
func (p *GraphContainerProtocol) permalink(ctx context.Context, mediaID, token string) string {
	var out struct {
		Permalink string `json:"permalink"`
	}
	params := url.Values{}
	params.Set("fields", "permalink")
	if err := p.api.getJSON(ctx, p.path(mediaID), params, token, &out); err != nil {
		return ""
	}
	return out.Permalink
}

func (p *GraphContainerProtocol) Metrics(ctx context.Context, postID, token string, _ *model.Account) (model.EngagementMetrics, error) {
	var out struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	params := url.Values{}
	params.Set("metric", fmt.Sprintf("views,likes,%s", p.spec.CommentsMetric))
	if err := p.api.getJSON(ctx, p.path(postID, "insights"), params, token, &out); err != nil {
		return model.EngagementMetrics{}, err
	}
	var m model.EngagementMetrics
	for _, d := range out.Data {
		if len(d.Values) == 0 {
			continue
		}
		switch d.Name {
		case "views":
			m.Views = d.Values[0].Value
		case "likes":
			m.Likes = d.Values[0].Value
		case p.spec.CommentsMetric:
			m.Comments = d.Values[0].Value
		}
	}
	return m, nil
}
