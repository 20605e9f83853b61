package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"content-distributor/domain/errs"

	"github.com/google/go-querystring/query"
	"golang.org/x/time/rate"
)

const maxErrorBody = 2048

// rateLimitedTransport waits for a limiter token before every request.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// newHTTPClient returns a client paced to rps requests per second. rps <= 0 disables pacing.
func newHTTPClient(base *http.Client, timeout time.Duration, rps float64, burst int) *http.Client {
	transport := http.DefaultTransport
	if base != nil && base.Transport != nil {
		transport = base.Transport
	}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		transport = &rateLimitedTransport{base: transport, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// apiClient is a small JSON/form client bound to one platform's API host.
type apiClient struct {
	platform string
	baseURL  string
	http     *http.Client
}

func newAPIClient(platform, baseURL string, client *http.Client) *apiClient {
	return &apiClient{platform: platform, baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *apiClient) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *apiClient) getJSON(ctx context.Context, path string, params url.Values, token string, out any) error {
	u := c.url(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, token, out)
	return err
}

func (c *apiClient) postJSON(ctx context.Context, path, token string, body any, headers map[string]string, out any) (http.Header, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", c.platform, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, token, out)
}

// postForm encodes body (a struct with `url` tags or url.Values) as a form.
func (c *apiClient) postForm(ctx context.Context, path, token string, body any, out any) error {
	form, err := formValues(body)
	if err != nil {
		return fmt.Errorf("encode %s form: %w", c.platform, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(req, token, out)
	return err
}

func formValues(body any) (url.Values, error) {
	if v, ok := body.(url.Values); ok {
		return v, nil
	}
	return query.Values(body)
}

// do sends req with an optional bearer token, classifies the status and decodes a JSON body into out.
func (c *apiClient) do(req *http.Request, token string, out any) (http.Header, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, &errs.TransientNetworkError{Platform: c.platform, Err: ctxErr}
		}
		return nil, &errs.TransientNetworkError{Platform: c.platform, Err: scrub(err, token)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.Header, &errs.TransientNetworkError{Platform: c.platform, StatusCode: resp.StatusCode, Err: scrub(err, token)}
	}
	if err := classify(c.platform, resp, body); err != nil {
		return resp.Header, err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.Header, fmt.Errorf("%s: decode response: %w", c.platform, err)
		}
	}
	return resp.Header, nil
}

// classify maps a non-2xx response: 5xx is transient, any 4xx is a rejection.
func classify(platform string, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet := clip(string(body), maxErrorBody)
	if resp.StatusCode >= 500 {
		return &errs.TransientNetworkError{Platform: platform, StatusCode: resp.StatusCode, Err: errors.New(snippet)}
	}
	return &errs.PlatformRejectedContentError{
		Platform:       platform,
		StatusCode:     resp.StatusCode,
		Body:           snippet,
		RetryAfterHint: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// fetchMedia downloads the content's video.
func fetchMedia(ctx context.Context, client *http.Client, platform, src string) ([]byte, error) {
	resp, err := openMedia(ctx, client, platform, src)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.TransientNetworkError{Platform: platform, Err: fmt.Errorf("read video: %w", scrub(err))}
	}
	return data, nil
}

// openMedia starts the video download; the caller closes the body.
func openMedia(ctx context.Context, client *http.Client, platform, src string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, &errs.PlatformRejectedContentError{Platform: platform, Body: fmt.Sprintf("invalid video url %q", src)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &errs.TransientNetworkError{Platform: platform, Err: fmt.Errorf("download video: %w", scrub(err))}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, &errs.TransientNetworkError{Platform: platform, StatusCode: resp.StatusCode, Err: fmt.Errorf("download video: %s", clip(string(body), maxErrorBody))}
		}
		return nil, &errs.PlatformRejectedContentError{Platform: platform, StatusCode: resp.StatusCode, Body: "download video: " + clip(string(body), maxErrorBody)}
	}
	return resp, nil
}
