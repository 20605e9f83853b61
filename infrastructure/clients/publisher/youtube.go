package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"content-distributor/domain/errs"
	"content-distributor/domain/model"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeDefaultChunk = 5 << 20

// YouTubeProtocol uploads a private video with a chunked upload, waits for
// processing, then flips it to public.
type YouTubeProtocol struct {
	endpoint  string
	client    *http.Client
	download  *http.Client
	chunkSize int
}

// NewYouTubeProtocol targets endpoint, or the public API when it is empty.
func NewYouTubeProtocol(endpoint string, client, download *http.Client, chunkSize int64) *YouTubeProtocol {
	if chunkSize <= 0 {
		chunkSize = youtubeDefaultChunk
	}
	return &YouTubeProtocol{endpoint: endpoint, client: client, download: mediaDownloader(download), chunkSize: int(chunkSize)}
}

func (p *YouTubeProtocol) service(ctx context.Context, token string) (*youtube.Service, error) {
	base := p.client
	if base == nil {
		base = http.DefaultClient
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), Base: base.Transport},
		Timeout:   base.Timeout,
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(p.endpoint, "/")+"/"))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return svc, nil
}

func (p *YouTubeProtocol) Start(ctx context.Context, in MediaInput) (*MediaHandle, error) {
	svc, err := p.service(ctx, in.Token)
	if err != nil {
		return nil, err
	}
	resp, err := openMedia(ctx, p.download, model.PlatformYouTube, in.Content.VideoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncateRunes(in.Content.Title, 100),
			Description: in.Caption,
			Tags:        in.Content.Tags,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: "private"},
	}
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(resp.Body, googleapi.ChunkSize(p.chunkSize)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, youtubeErr(err)
	}
	if uploaded.Id == "" {
		return nil, emptyID(model.PlatformYouTube)
	}
	h := &MediaHandle{ID: uploaded.Id}
	h.set("video_id", uploaded.Id)
	return h, nil
}

func (p *YouTubeProtocol) Status(ctx context.Context, in MediaInput, h *MediaHandle) (MediaStatus, error) {
	svc, err := p.service(ctx, in.Token)
	if err != nil {
		return MediaStatus{}, err
	}
	list, err := svc.Videos.List([]string{"processingDetails", "status"}).Id(h.ID).Context(ctx).Do()
	if err != nil {
		return MediaStatus{}, youtubeErr(err)
	}
	if len(list.Items) == 0 {
		return MediaStatus{State: MediaPending, Detail: "not_listed"}, nil
	}
	v := list.Items[0]
	if v.Status != nil && (v.Status.UploadStatus == "rejected" || v.Status.UploadStatus == "failed") {
		reason := v.Status.RejectionReason
		if reason == "" {
			reason = v.Status.FailureReason
		}
		h.set("fail_reason", reason)
		return MediaStatus{State: MediaFailed, Detail: v.Status.UploadStatus}, nil
	}
	if v.ProcessingDetails == nil {
		return MediaStatus{State: MediaPending, Detail: "unknown"}, nil
	}
	st := v.ProcessingDetails.ProcessingStatus
	switch st {
	case "succeeded":
		return MediaStatus{State: MediaReady, Detail: st}, nil
	case "failed", "terminated":
		h.set("fail_reason", v.ProcessingDetails.ProcessingFailureReason)
		return MediaStatus{State: MediaFailed, Detail: st}, nil
	}
	return MediaStatus{State: MediaPending, Detail: st}, nil
}

func (p *YouTubeProtocol) Publish(ctx context.Context, in MediaInput, h *MediaHandle) (*postResult, error) {
	svc, err := p.service(ctx, in.Token)
	if err != nil {
		return nil, err
	}
	update := &youtube.Video{Id: h.ID, Status: &youtube.VideoStatus{PrivacyStatus: "public"}}
	if _, err := svc.Videos.Update([]string{"status"}, update).Context(ctx).Do(); err != nil {
		return nil, youtubeErr(err)
	}
	return &postResult{
		PostID:    h.ID,
		PublicURL: "https://www.youtube.com/watch?v=" + h.ID,
		Metadata:  h.Metadata,
	}, nil
}

func (p *YouTubeProtocol) Metrics(ctx context.Context, postID, token string, _ *model.Account) (model.EngagementMetrics, error) {
	svc, err := p.service(ctx, token)
	if err != nil {
		return model.EngagementMetrics{}, err
	}
	list, err := svc.Videos.List([]string{"statistics"}).Id(postID).Context(ctx).Do()
	if err != nil {
		return model.EngagementMetrics{}, youtubeErr(err)
	}
	if len(list.Items) == 0 || list.Items[0].Statistics == nil {
		return model.EngagementMetrics{}, fmt.Errorf("video %s not found", postID)
	}
	s := list.Items[0].Statistics
	return model.EngagementMetrics{Views: int64(s.ViewCount), Likes: int64(s.LikeCount), Comments: int64(s.CommentCount)}, nil
}

// youtubeErr maps googleapi errors onto the shared error types.
func youtubeErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code >= 500 {
			return &errs.TransientNetworkError{Platform: model.PlatformYouTube, StatusCode: gerr.Code, Err: err}
		}
		return &errs.PlatformRejectedContentError{Platform: model.PlatformYouTube, StatusCode: gerr.Code, Body: gerr.Message}
	}
	return &errs.TransientNetworkError{Platform: model.PlatformYouTube, Err: scrub(err)}
}
