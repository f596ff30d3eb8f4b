// Package drive adapts the Google Drive v3 API to a small listing and
// download contract with typed errors.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	FolderMimeType   = "application/vnd.google-apps.folder"
	nativeMimePrefix = "application/vnd.google-apps."

	listFields = "nextPageToken, files(id, name, mimeType, size, modifiedTime, webViewLink)"
	getFields  = "id, name, mimeType, size, modifiedTime, webViewLink, owners(displayName, emailAddress)"
)

type Entry struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mime_type"`
	SizeBytes    *int64   `json:"size_bytes,omitempty"`
	IsFolder     bool     `json:"is_folder"`
	WebViewLink  string   `json:"web_view_link,omitempty"`
	ModifiedTime string   `json:"modified_time,omitempty"`
	Owners       []string `json:"owners,omitempty"`
}

// Exportable reports whether the entry has a byte stream that can be downloaded as-is.
func (e *Entry) Exportable() bool {
	return !e.IsFolder && !strings.HasPrefix(e.MimeType, nativeMimePrefix)
}

type Page struct {
	Entries       []Entry `json:"files"`
	NextPageToken string  `json:"next_page_token,omitempty"`
}

type Config struct {
	Endpoint      string        `env:"DRIVE_ENDPOINT" env-default:""`
	Timeout       time.Duration `env:"DRIVE_TIMEOUT" env-default:"30s"`
	MaxRetries    int           `env:"DRIVE_MAX_RETRIES" env-default:"3"`
	RetryBaseWait time.Duration `env:"DRIVE_RETRY_BASE_WAIT" env-default:"500ms"`
}

type Client struct {
	endpoint   string
	timeout    time.Duration
	maxRetries int
	baseWait   time.Duration
	transport  http.RoundTripper
	// download bounds only the wait for response headers; the body is read
	// under the caller's context.
	download http.RoundTripper
}

func New(cfg Config) *Client {
	download := http.DefaultTransport.(*http.Transport).Clone()
	download.ResponseHeaderTimeout = cfg.Timeout
	return &Client{
		endpoint:   cfg.Endpoint,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		baseWait:   cfg.RetryBaseWait,
		transport:  http.DefaultTransport,
		download:   download,
	}
}

func (c *Client) service(ctx context.Context, ts oauth2.TokenSource, base http.RoundTripper) (*gdrive.Service, error) {
	if ts == nil {
		return nil, apperr.ErrNotConnected
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	return svc, nil
}

// ListPage lists non-trashed entries, optionally inside folderID.
func (c *Client) ListPage(ctx context.Context, ts oauth2.TokenSource, folderID, pageToken string, pageSize int) (*Page, error) {
	svc, err := c.service(ctx, ts, c.transport)
	if err != nil {
		return nil, err
	}

	q := "trashed=false"
	if folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(folderID))
	}

	var res *gdrive.FileList
	err = c.withRetry(ctx, func(ctx context.Context) error {
		call := svc.Files.List().Q(q).PageSize(int64(clampPageSize(pageSize))).Fields(listFields).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		res, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &Page{NextPageToken: res.NextPageToken, Entries: make([]Entry, 0, len(res.Files))}
	for _, f := range res.Files {
		page.Entries = append(page.Entries, toEntry(f))
	}
	return page, nil
}

// Get is the single-item metadata lookup.
func (c *Client) Get(ctx context.Context, ts oauth2.TokenSource, id string) (*Entry, error) {
	svc, err := c.service(ctx, ts, c.transport)
	if err != nil {
		return nil, err
	}
	var f *gdrive.File
	err = c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		f, err = svc.Files.Get(id).Fields(getFields).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	e := toEntry(f)
	return &e, nil
}

// Open streams the content of a file. The caller closes the body. The
// configured timeout covers the wait for response headers only; reading the
// body is bounded by ctx.
func (c *Client) Open(ctx context.Context, ts oauth2.TokenSource, id string) (io.ReadCloser, error) {
	svc, err := c.service(ctx, ts, c.download)
	if err != nil {
		return nil, err
	}
	var resp *http.Response
	err = c.retry(ctx, 0, func(ctx context.Context) error {
		var err error
		resp, err = svc.Files.Get(id).Context(ctx).Download()
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// withRetry applies the per-call timeout and retries rate-limited calls with
// exponential backoff and jitter. Other errors are returned at once.
func (c *Client) withRetry(ctx context.Context, call func(ctx context.Context) error) error {
	return c.retry(ctx, c.timeout, call)
}

// retry runs call with up to maxRetries backoffs on rate limiting. A zero
// timeout leaves the attempt bounded by ctx alone.
func (c *Client) retry(ctx context.Context, timeout time.Duration, call func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := c.attempt(ctx, timeout, call)
		if err == nil || !errors.Is(err, apperr.ErrRateLimited) || attempt >= c.maxRetries {
			return err
		}

		wait := c.baseWait << attempt
		wait += time.Duration(rand.Int63n(int64(wait)/2 + 1))
		logger.GetLogger(ctx).Warn("drive rate limited, backing off",
			zap.Int("attempt", attempt+1), zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return mapError(ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Client) attempt(ctx context.Context, timeout time.Duration, call func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return mapError(call(ctx))
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch {
		case gErr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: file not found in Google Drive", apperr.ErrNotFound)
		case gErr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%w: Google Drive authorization expired", apperr.ErrNotConnected)
		case gErr.Code == http.StatusTooManyRequests, gErr.Code == http.StatusForbidden && hasReason(gErr, "rateLimitExceeded", "userRateLimitExceeded"):
			return fmt.Errorf("%w: %s", apperr.ErrRateLimited, gErr.Message)
		case gErr.Code == http.StatusForbidden && hasReason(gErr, "storageQuotaExceeded", "quotaExceeded"):
			return fmt.Errorf("%w: Google Drive storage quota exceeded", apperr.ErrUnavailable)
		case gErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: no access to file in Google Drive", apperr.ErrPermissionDenied)
		case gErr.Code >= 500:
			return fmt.Errorf("%w: %s", apperr.ErrUnavailable, gErr.Message)
		}
		return fmt.Errorf("drive request failed: %w", err)
	}

	if errors.Is(err, apperr.ErrNotConnected) {
		return err
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return fmt.Errorf("%w: token refresh refused: %s", apperr.ErrNotConnected, rErr.ErrorCode)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", apperr.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	return err
}

func hasReason(err *googleapi.Error, reasons ...string) bool {
	for _, item := range err.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}

func toEntry(f *gdrive.File) Entry {
	e := Entry{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		IsFolder:     f.MimeType == FolderMimeType,
		WebViewLink:  f.WebViewLink,
		ModifiedTime: f.ModifiedTime,
	}
	if !strings.HasPrefix(f.MimeType, nativeMimePrefix) {
		size := f.Size
		e.SizeBytes = &size
	}
	for _, o := range f.Owners {
		if o.EmailAddress != "" {
			e.Owners = append(e.Owners, o.EmailAddress)
		} else if o.DisplayName != "" {
			e.Owners = append(e.Owners, o.DisplayName)
		}
	}
	return e
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
