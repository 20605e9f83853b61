package publisher

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"content-distributor/domain/errs"
	"content-distributor/domain/model"
)

const graphVersion = "v19.0"

// FacebookSpec posts a link to a page feed.
func FacebookSpec() SimplePostSpec {
	type feedForm struct {
		Message string `url:"message"`
		Link    string `url:"link,omitempty"`
	}
	type feedResp struct {
		ID string `json:"id"`
	}
	return SimplePostSpec{
		Platform:     model.PlatformFacebook,
		CaptionLimit: 5000,
		Encoding:     EncodeForm,
		Endpoint: func(acct *model.Account) (string, error) {
			page := acct.Meta(model.MetaPageID)
			if page == "" {
				return "", missingMeta(model.PlatformFacebook, model.MetaPageID)
			}
			return fmt.Sprintf("/%s/%s/feed", graphVersion, url.PathEscape(page)), nil
		},
		Body:   func(in PostInput) any { return feedForm{Message: in.Caption, Link: in.Link} },
		Decode: func() any { return &feedResp{} },
		PostID: func(resp any) (string, error) {
			if id := resp.(*feedResp).ID; id != "" {
				return id, nil
			}
			return "", emptyID(model.PlatformFacebook)
		},
		PublicURL: func(postID string, _ PostInput) string { return "https://www.facebook.com/" + postID },
		Metrics: func(ctx context.Context, api *apiClient, postID, token string, _ *model.Account) (model.EngagementMetrics, error) {
			var out struct {
				Reactions struct {
					Summary struct {
						TotalCount int64 `json:"total_count"`
					} `json:"summary"`
				} `json:"reactions"`
				Comments struct {
					Summary struct {
						TotalCount int64 `json:"total_count"`
					} `json:"summary"`
				} `json:"comments"`
			}
			params := url.Values{}
			params.Set("fields", "reactions.summary(total_count),comments.summary(total_count)")
			if err := api.getJSON(ctx, fmt.Sprintf("/%s/%s", graphVersion, url.PathEscape(postID)), params, token, &out); err != nil {
				return model.EngagementMetrics{}, err
			}
			return model.EngagementMetrics{Likes: out.Reactions.Summary.TotalCount, Comments: out.Comments.Summary.TotalCount}, nil
		},
	}
}

// LinkedInSpec creates a UGC share of the article link.
func LinkedInSpec() SimplePostSpec {
	type ugcResp struct {
		ID string `json:"id"`
	}
	return SimplePostSpec{
		Platform:     model.PlatformLinkedIn,
		CaptionLimit: 3000,
		Encoding:     EncodeJSON,
		Headers:      map[string]string{"X-Restli-Protocol-Version": "2.0.0"},
		Endpoint: func(acct *model.Account) (string, error) {
			if acct.Meta(model.MetaPersonURN) == "" {
				return "", missingMeta(model.PlatformLinkedIn, model.MetaPersonURN)
			}
			return "/v2/ugcPosts", nil
		},
		Body: func(in PostInput) any {
			media := []map[string]any{}
			category := "NONE"
			if in.Link != "" {
				category = "ARTICLE"
				media = append(media, map[string]any{
					"status":      "READY",
					"originalUrl": in.Link,
					"title":       map[string]string{"text": in.Content.Title},
				})
			}
			return map[string]any{
				"author":         in.Account.Meta(model.MetaPersonURN),
				"lifecycleState": "PUBLISHED",
				"specificContent": map[string]any{
					"com.linkedin.ugc.ShareContent": map[string]any{
						"shareCommentary":    map[string]string{"text": in.Caption},
						"shareMediaCategory": category,
						"media":              media,
					},
				},
				"visibility": map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
			}
		},
		Decode: func() any { return &ugcResp{} },
		PostID: func(resp any) (string, error) {
			if id := resp.(*ugcResp).ID; id != "" {
				return id, nil
			}
			return "", emptyID(model.PlatformLinkedIn)
		},
		PublicURL: func(postID string, _ PostInput) string {
			return "https://www.linkedin.com/feed/update/" + postID + "/"
		},
		Metrics: func(ctx context.Context, api *apiClient, postID, token string, _ *model.Account) (model.EngagementMetrics, error) {
			var out struct {
				LikesSummary struct {
					TotalLikes int64 `json:"totalLikes"`
				} `json:"likesSummary"`
				CommentsSummary struct {
					AggregatedTotalComments int64 `json:"aggregatedTotalComments"`
				} `json:"commentsSummary"`
			}
			if err := api.getJSON(ctx, "/v2/socialActions/"+url.PathEscape(postID), nil, token, &out); err != nil {
				return model.EngagementMetrics{}, err
			}
			return model.EngagementMetrics{Likes: out.LikesSummary.TotalLikes, Comments: out.CommentsSummary.AggregatedTotalComments}, nil
		},
	}
}

// TwitterSpec creates a tweet through the v2 API.
func TwitterSpec() SimplePostSpec {
	type tweetResp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	return SimplePostSpec{
		Platform:     model.PlatformTwitter,
		CaptionLimit: 280,
		Encoding:     EncodeJSON,
		Endpoint:     func(*model.Account) (string, error) { return "/2/tweets", nil },
		Body:         func(in PostInput) any { return map[string]string{"text": in.Caption} },
		Decode:       func() any { return &tweetResp{} },
		PostID: func(resp any) (string, error) {
			if id := resp.(*tweetResp).Data.ID; id != "" {
				return id, nil
			}
			return "", emptyID(model.PlatformTwitter)
		},
		PublicURL: func(postID string, in PostInput) string {
			user := in.Account.Meta(model.MetaUsername)
			if user == "" {
				user = "i/web"
			}
			return fmt.Sprintf("https://x.com/%s/status/%s", user, postID)
		},
		Metrics: func(ctx context.Context, api *apiClient, postID, token string, _ *model.Account) (model.EngagementMetrics, error) {
			var out struct {
				Data struct {
					PublicMetrics struct {
						ImpressionCount int64 `json:"impression_count"`
						LikeCount       int64 `json:"like_count"`
						ReplyCount      int64 `json:"reply_count"`
					} `json:"public_metrics"`
				} `json:"data"`
			}
			params := url.Values{}
			params.Set("tweet.fields", "public_metrics")
			if err := api.getJSON(ctx, "/2/tweets/"+url.PathEscape(postID), params, token, &out); err != nil {
				return model.EngagementMetrics{}, err
			}
			pm := out.Data.PublicMetrics
			return model.EngagementMetrics{Views: pm.ImpressionCount, Likes: pm.LikeCount, Comments: pm.ReplyCount}, nil
		},
	}
}

// RedditSpec submits a link post into the account's subreddit.
func RedditSpec() SimplePostSpec {
	type submitForm struct {
		Kind    string `url:"kind"`
		SR      string `url:"sr"`
		Title   string `url:"title"`
		URL     string `url:"url,omitempty"`
		Text    string `url:"text,omitempty"`
		APIType string `url:"api_type"`
	}
	type submitResp struct {
		JSON struct {
			Errors [][]any `json:"errors"`
			Data   struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"data"`
		} `json:"json"`
	}
	return SimplePostSpec{
		Platform:     model.PlatformReddit,
		CaptionLimit: 300,
		Encoding:     EncodeForm,
		Endpoint: func(acct *model.Account) (string, error) {
			if acct.Meta(model.MetaSubreddit) == "" {
				return "", missingMeta(model.PlatformReddit, model.MetaSubreddit)
			}
			return "/api/submit", nil
		},
		Body: func(in PostInput) any {
			title := truncateRunes(strings.TrimSpace(in.Content.Title), 300)
			f := submitForm{SR: in.Account.Meta(model.MetaSubreddit), Title: title, APIType: "json"}
			if in.Link != "" {
				f.Kind, f.URL = "link", in.Link
			} else {
				f.Kind, f.Text = "self", in.Caption
			}
			return f
		},
		Decode: func() any { return &submitResp{} },
		PostID: func(resp any) (string, error) {
			r := resp.(*submitResp)
			if len(r.JSON.Errors) > 0 {
				return "", &errs.PlatformRejectedContentError{Platform: model.PlatformReddit, StatusCode: 200, Body: fmt.Sprint(r.JSON.Errors)}
			}
			if r.JSON.Data.ID == "" {
				return "", emptyID(model.PlatformReddit)
			}
			return r.JSON.Data.ID, nil
		},
		PublicURL: func(postID string, in PostInput) string {
			return fmt.Sprintf("https://www.reddit.com/r/%s/comments/%s/", in.Account.Meta(model.MetaSubreddit), postID)
		},
		Metrics: func(ctx context.Context, api *apiClient, postID, token string, _ *model.Account) (model.EngagementMetrics, error) {
			var out struct {
				Data struct {
					Children []struct {
						Data struct {
							Score       int64 `json:"score"`
							NumComments int64 `json:"num_comments"`
						} `json:"data"`
					} `json:"children"`
				} `json:"data"`
			}
			params := url.Values{}
			params.Set("id", "t3_"+postID)
			if err := api.getJSON(ctx, "/api/info", params, token, &out); err != nil {
				return model.EngagementMetrics{}, err
			}
			if len(out.Data.Children) == 0 {
				return model.EngagementMetrics{}, fmt.Errorf("post t3_%s not found", postID)
			}
			d := out.Data.Children[0].Data
			return model.EngagementMetrics{Likes: d.Score, Comments: d.NumComments}, nil
		},
	}
}
