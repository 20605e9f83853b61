package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"content-distributor/domain/errs"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"

	tele "gopkg.in/telebot.v4"
)

// BotAPISpec is the immutable bot configuration injected at construction.
type BotAPISpec struct {
	Token        string
	ChannelID    string
	APIURL       string
	CaptionLimit int
}

func (s BotAPISpec) Configured() bool {
	return strings.TrimSpace(s.Token) != "" && strings.TrimSpace(s.ChannelID) != ""
}

type channel string

func (c channel) Recipient() string { return string(c) }

// TelegramPublisher posts to a channel as a bot. It has no per-account credentials.
type TelegramPublisher struct {
	spec    BotAPISpec
	bot     *tele.Bot
	flow    flow
	siteURL string
}

var _ repository.IPublisher = (*TelegramPublisher)(nil)

func NewTelegramPublisher(spec BotAPISpec, client *http.Client, records repository.IPublishRecord, siteURL string) (*TelegramPublisher, error) {
	if !spec.Configured() {
		return nil, errors.New("telegram bot token or channel id is empty")
	}
	if spec.CaptionLimit <= 0 {
		spec.CaptionLimit = 1024
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   spec.Token,
		URL:     spec.APIURL,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramPublisher{spec: spec, bot: b, flow: newFlow(model.PlatformTelegram, records), siteURL: siteURL}, nil
}

func (p *TelegramPublisher) Platform() string { return model.PlatformTelegram }

func (p *TelegramPublisher) Publish(ctx context.Context, content *model.ContentItem, _ *model.Account) (*model.PublishRecord, error) {
	return p.flow.run(ctx, content, nil,
		func(context.Context) (string, error) { return p.spec.Token, nil },
		func(ctx context.Context, _ string) (*postResult, error) {
			if err := ctx.Err(); err != nil {
				return nil, &errs.TransientNetworkError{Platform: model.PlatformTelegram, Err: err}
			}
			link := content.Link(p.siteURL)
			to := channel(p.spec.ChannelID)
			var msg *tele.Message
			var err error
			if content.HasVideo() {
				msg, err = p.bot.Send(to, &tele.Video{
					File:    tele.FromURL(content.VideoURL),
					Caption: BuildCaption(content, link, p.spec.CaptionLimit),
				})
			} else {
				msg, err = p.bot.Send(to, BuildCaption(content, link, 4096))
			}
			if err != nil {
				return nil, telegramErr(err, p.spec.Token)
			}
			postID := strconv.Itoa(msg.ID)
			meta := map[string]string{}
			if msg.Chat != nil {
				meta["chat_id"] = strconv.FormatInt(msg.Chat.ID, 10)
			}
			return &postResult{PostID: postID, PublicURL: p.messageURL(msg), Metadata: meta}, nil
		})
}

// messageURL links to a channel post: public channels by username, private ones through /c/.
func (p *TelegramPublisher) messageURL(msg *tele.Message) string {
	if msg.Chat != nil && msg.Chat.Username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", msg.Chat.Username, msg.ID)
	}
	id := p.spec.ChannelID
	if strings.HasPrefix(id, "@") {
		return fmt.Sprintf("https://t.me/%s/%d", strings.TrimPrefix(id, "@"), msg.ID)
	}
	if strings.HasPrefix(id, "-100") {
		return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(id, "-100"), msg.ID)
	}
	return ""
}

// GetMetrics returns zeros: the Bot API exposes no counters for channel posts.
func (p *TelegramPublisher) GetMetrics(context.Context, string, *model.Account) (model.EngagementMetrics, error) {
	return model.EngagementMetrics{}, nil
}

// telegramErr maps telebot failures. The bot token is part of every request
// path, so transport errors are scrubbed before they are wrapped.
func telegramErr(err error, token string) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &errs.PlatformRejectedContentError{
			Platform:       model.PlatformTelegram,
			StatusCode:     http.StatusTooManyRequests,
			Body:           flood.Error(),
			RetryAfterHint: time.Duration(flood.RetryAfter) * time.Second,
		}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 {
			return &errs.TransientNetworkError{Platform: model.PlatformTelegram, StatusCode: apiErr.Code, Err: scrub(err, token)}
		}
		return &errs.PlatformRejectedContentError{Platform: model.PlatformTelegram, StatusCode: apiErr.Code, Body: apiErr.Description}
	}
	err = scrub(err, token)
	if code := trailingStatus(err.Error()); code > 0 && code < 500 {
		return &errs.PlatformRejectedContentError{Platform: model.PlatformTelegram, StatusCode: code, Body: err.Error()}
	}
	return &errs.TransientNetworkError{Platform: model.PlatformTelegram, Err: err}
}

// trailingStatus reads the "(400)" suffix telebot puts on API errors it has no type for.
func trailingStatus(msg string) int {
	msg = strings.TrimSpace(msg)
	open := strings.LastIndex(msg, "(")
	if open < 0 || !strings.HasSuffix(msg, ")") {
		return 0
	}
	code, err := strconv.Atoi(msg[open+1 : len(msg)-1])
	if err != nil {
		return 0
	}
	return code
}
