package publisher

import (
	"errors"
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// scrubbedError carries a cleaned message while keeping err in the chain for errors.As.
type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

// scrub cuts request URLs in err's text down to scheme://host and replaces
// every non-empty secret. Tokens travel in query strings (signed upload URLs)
// and in paths (bot API), so neither part is kept.
func scrub(err error, secrets ...string) error {
	if err == nil {
		return nil
	}
	orig := err.Error()
	msg := orig
	var ue *url.Error
	if errors.As(err, &ue) && ue.URL != "" {
		msg = strings.ReplaceAll(msg, ue.URL, originOf(ue.URL))
	}
	for _, s := range secrets {
		if s != "" {
			msg = strings.ReplaceAll(msg, s, redacted)
		}
	}
	if msg == orig {
		return err
	}
	return &scrubbedError{msg: msg, err: err}
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	return u.Scheme + "://" + u.Host
}

// clip bounds s to max bytes without splitting a rune and drops any invalid UTF-8.
func clip(s string, max int) string {
	if len(s) > max {
		s = s[:max]
	}
	return strings.ToValidUTF8(s, "")
}
