package publisher

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"content-distributor/domain/model"
)

// Hashtags turns free-form tags into deduplicated "#tag" tokens, keeping first-seen order.
func Hashtags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		var b strings.Builder
		for _, r := range strings.TrimPrefix(strings.TrimSpace(tag), "#") {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				b.WriteRune(unicode.ToLower(r))
			}
		}
		if b.Len() == 0 {
			continue
		}
		h := "#" + b.String()
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// BuildCaption joins title, excerpt, hashtags and link with blank lines. When the
// result exceeds limit runes the text before the link is cut with an ellipsis and
// the link is kept whole. limit <= 0 means unlimited.
func BuildCaption(content *model.ContentItem, link string, limit int) string {
	parts := make([]string, 0, 3)
	if t := strings.TrimSpace(content.Title); t != "" {
		parts = append(parts, t)
	}
	if e := strings.TrimSpace(content.Excerpt); e != "" {
		parts = append(parts, e)
	}
	if tags := Hashtags(content.Tags); len(tags) > 0 {
		parts = append(parts, strings.Join(tags, " "))
	}
	body := strings.Join(parts, "\n\n")

	full := body
	if link != "" {
		if full != "" {
			full += "\n\n"
		}
		full += link
	}
	if limit <= 0 || utf8.RuneCountInString(full) <= limit {
		return full
	}

	if link == "" {
		return truncateRunes(body, limit)
	}
	budget := limit - utf8.RuneCountInString(link) - 2
	if budget <= 0 {
		return truncateRunes(link, limit)
	}
	return truncateRunes(body, budget) + "\n\n" + link
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	r := []rune(s)[:limit-3]
	return strings.TrimRightFunc(string(r), unicode.IsSpace) + "..."
}
