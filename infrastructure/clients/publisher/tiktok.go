package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"content-distributor/domain/errs"
	"content-distributor/domain/model"
)

const tiktokDefaultChunk = 10 << 20

// TikTokProtocol uploads through the Content Posting API: init, chunked PUT, status fetch.
type TikTokProtocol struct {
	api       *apiClient
	download  *http.Client
	chunkSize int64
}

func NewTikTokProtocol(api *apiClient, download *http.Client, chunkSize int64) *TikTokProtocol {
	if chunkSize <= 0 {
		chunkSize = tiktokDefaultChunk
	}
	return &TikTokProtocol{api: api, download: mediaDownloader(download), chunkSize: chunkSize}
}

type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e tiktokError) err() error {
	if e.Code == "" || e.Code == "ok" {
		return nil
	}
	return &errs.PlatformRejectedContentError{Platform: model.PlatformTikTok, StatusCode: 200, Body: e.Code + ": " + e.Message}
}

// chunkPlan splits size into whole chunks; the last chunk absorbs the remainder.
func chunkPlan(size, chunk int64) (int64, int64) {
	if size <= chunk {
		return size, 1
	}
	return chunk, size / chunk
}

func (p *TikTokProtocol) Start(ctx context.Context, in MediaInput) (*MediaHandle, error) {
	video, err := fetchMedia(ctx, p.download, model.PlatformTikTok, in.Content.VideoURL)
	if err != nil {
		return nil, err
	}
	size := int64(len(video))
	if size == 0 {
		return nil, &errs.PlatformRejectedContentError{Platform: model.PlatformTikTok, Body: "video is empty"}
	}
	chunk, count := chunkPlan(size, p.chunkSize)

	var initResp struct {
		Data struct {
			PublishID string `json:"publish_id"`
			UploadURL string `json:"upload_url"`
		} `json:"data"`
		Error tiktokError `json:"error"`
	}
	body := map[string]any{
		"post_info": map[string]any{
			"title":         in.Caption,
			"privacy_level": "PUBLIC_TO_EVERYONE",
		},
		"source_info": map[string]any{
			"source":            "FILE_UPLOAD",
			"video_size":        size,
			"chunk_size":        chunk,
			"total_chunk_count": count,
		},
	}
	if _, err := p.api.postJSON(ctx, "/v2/post/publish/video/init/", in.Token, body, nil, &initResp); err != nil {
		return nil, err
	}
	if err := initResp.Error.err(); err != nil {
		return nil, err
	}
	if initResp.Data.PublishID == "" || initResp.Data.UploadURL == "" {
		return nil, emptyID(model.PlatformTikTok)
	}
	h := &MediaHandle{ID: initResp.Data.PublishID}
	h.set("publish_id", initResp.Data.PublishID)

	for i := int64(0); i < count; i++ {
		start := i * chunk
		end := start + chunk
		if i == count-1 {
			end = size
		}
		if err := p.putChunk(ctx, initResp.Data.UploadURL, video[start:end], start, end-1, size); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (p *TikTokProtocol) putChunk(ctx context.Context, uploadURL string, data []byte, first, last, total int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", first, last, total))
	resp, err := p.api.http.Do(req)
	if err != nil {
		return &errs.TransientNetworkError{Platform: model.PlatformTikTok, Err: fmt.Errorf("upload chunk: %w", scrub(err))}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return classify(model.PlatformTikTok, resp, body)
}

func (p *TikTokProtocol) Status(ctx context.Context, in MediaInput, h *MediaHandle) (MediaStatus, error) {
	var out struct {
		Data struct {
			Status     string  `json:"status"`
			FailReason string  `json:"fail_reason"`
			PostIDs    []int64 `json:"publicaly_available_post_id"`
		} `json:"data"`
		Error tiktokError `json:"error"`
	}
	if _, err := p.api.postJSON(ctx, "/v2/post/publish/status/fetch/", in.Token, map[string]string{"publish_id": h.ID}, nil, &out); err != nil {
		return MediaStatus{}, err
	}
	if err := out.Error.err(); err != nil {
		return MediaStatus{}, err
	}
	st := out.Data.Status
	switch st {
	case "PUBLISH_COMPLETE":
		if len(out.Data.PostIDs) > 0 {
			h.set("post_id", fmt.Sprint(out.Data.PostIDs[0]))
		}
		return MediaStatus{State: MediaReady, Detail: st}, nil
	case "FAILED":
		h.set("fail_reason", out.Data.FailReason)
		return MediaStatus{State: MediaFailed, Detail: st}, nil
	}
	return MediaStatus{State: MediaPending, Detail: st}, nil
}

// Publish is a no-op on TikTok: a FILE_UPLOAD direct post goes live once processing completes.
func (p *TikTokProtocol) Publish(_ context.Context, in MediaInput, h *MediaHandle) (*postResult, error) {
	postID := h.Metadata["post_id"]
	publicURL := ""
	if postID == "" {
		postID = h.ID
	} else if user := strings.TrimPrefix(in.Account.Meta(model.MetaUsername), "@"); user != "" {
		publicURL = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", user, postID)
	}
	return &postResult{PostID: postID, PublicURL: publicURL, Metadata: h.Metadata}, nil
}

func (p *TikTokProtocol) Metrics(ctx context.Context, postID, token string, _ *model.Account) (model.EngagementMetrics, error) {
	var out struct {
		Data struct {
			Videos []struct {
				ViewCount    int64 `json:"view_count"`
				LikeCount    int64 `json:"like_count"`
				CommentCount int64 `json:"comment_count"`
			} `json:"videos"`
		} `json:"data"`
		Error tiktokError `json:"error"`
	}
	body := map[string]any{"filters": map[string]any{"video_ids": []string{postID}}}
	path := "/v2/video/query/?fields=id,view_count,like_count,comment_count"
	if _, err := p.api.postJSON(ctx, path, token, body, nil, &out); err != nil {
		return model.EngagementMetrics{}, err
	}
	if err := out.Error.err(); err != nil {
		return model.EngagementMetrics{}, err
	}
	if len(out.Data.Videos) == 0 {
		return model.EngagementMetrics{}, fmt.Errorf("video %s not found", postID)
	}
	v := out.Data.Videos[0]
	return model.EngagementMetrics{Views: v.ViewCount, Likes: v.LikeCount, Comments: v.CommentCount}, nil
}
