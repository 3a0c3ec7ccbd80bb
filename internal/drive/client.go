// Package drive is a small Google Drive v3 REST client covering what the
// snapshot store needs: search, create (folder or multipart file), media
// update and media download.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

const (
	// DefaultBaseURL is the public Google APIs endpoint.
	DefaultBaseURL = "https://www.googleapis.com"

	// FolderMimeType marks a Drive folder.
	FolderMimeType = "application/vnd.google-apps.folder"

	fileFields = "id,name,mimeType,parents,createdTime,modifiedTime"
)

// File is the subset of Drive file metadata the client reads back.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	Parents      []string  `json:"parents,omitempty"`
	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// Metadata is sent when creating a file or folder.
type Metadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

type fileList struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

// Client talks to the Drive v3 API with a caller-provided bearer token.
// Transient failures (network, 429, 5xx) of GET and media PATCH requests are
// retried with capped exponential backoff. POST creates are retried only when
// Drive cannot have committed them: a 429 or a failed dial. Every other
// non-2xx answer becomes a *domain.RemoteError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Options tunes the client. Zero values select defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewClient creates a Drive client.
func NewClient(opts Options, log logger.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     log,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 200 * time.Millisecond
	}
	if c.maxDelay <= 0 {
		c.maxDelay = 5 * time.Second
	}
	return c
}

// Search lists all pages of results of a Drive query, oldest first.
func (c *Client) Search(ctx context.Context, token, query string) ([]File, error) {
	var files []File
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("q", query)
		q.Set("spaces", "drive")
		q.Set("orderBy", "createdTime")
		q.Set("fields", "nextPageToken,files("+fileFields+")")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page fileList
		if err := c.do(ctx, token, http.MethodGet, c.baseURL+"/drive/v3/files?"+q.Encode(), "", nil, &page); err != nil {
			return nil, err
		}
		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// CreateFolder creates a folder with the given name at the Drive root.
func (c *Client) CreateFolder(ctx context.Context, token, name string) (File, error) {
	body, err := json.Marshal(Metadata{Name: name, MimeType: FolderMimeType})
	if err != nil {
		return File{}, fmt.Errorf("failed to marshal folder metadata: %w", err)
	}
	var out File
	err = c.do(ctx, token, http.MethodPost, c.baseURL+"/drive/v3/files?fields="+fileFields, "application/json", body, &out)
	return out, err
}

// Create uploads a new file (metadata + content) in one multipart request.
func (c *Client) Create(ctx context.Context, token string, meta Metadata, content []byte, contentType string) (File, error) {
	body, boundary, err := multipartBody(meta, content, contentType)
	if err != nil {
		return File{}, err
	}
	var out File
	err = c.do(ctx, token, http.MethodPost,
		c.baseURL+"/upload/drive/v3/files?uploadType=multipart&fields="+fileFields,
		"multipart/related; boundary="+boundary, body, &out)
	return out, err
}

// Update replaces the content of an existing file. Id and name are unchanged.
func (c *Client) Update(ctx context.Context, token, id string, content []byte, contentType string) (File, error) {
	var out File
	err := c.do(ctx, token, http.MethodPatch,
		c.baseURL+"/upload/drive/v3/files/"+url.PathEscape(id)+"?uploadType=media&fields="+fileFields,
		contentType, content, &out)
	return out, err
}

// Read downloads the raw content of a file.
func (c *Client) Read(ctx context.Context, token, id string) ([]byte, error) {
	var out []byte
	err := c.do(ctx, token, http.MethodGet, c.baseURL+"/drive/v3/files/"+url.PathEscape(id)+"?alt=media", "", nil, &out)
	return out, err
}

func multipartBody(meta Metadata, content []byte, contentType string) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := mw.CreatePart(metaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create metadata part: %w", err)
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, "", fmt.Errorf("failed to encode metadata part: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", contentType)
	mediaPart, err := mw.CreatePart(mediaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create media part: %w", err)
	}
	if _, err := mediaPart.Write(content); err != nil {
		return nil, "", fmt.Errorf("failed to write media part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), mw.Boundary(), nil
}

// do sends one request, retrying transient failures. out may be a *[]byte
// (raw body) or any JSON target; nil discards the body.
func (c *Client) do(ctx context.Context, token, method, rawURL, contentType string, body []byte, out any) error {
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < c.maxRetries && retryableError(method, err) {
				delay := c.retryDelay(attempt+1, "")
				c.logger.Warn("drive request failed, retrying",
					logger.String("method", method),
					logger.Int("attempt", attempt+1),
					logger.Duration("next_retry_in", delay),
					logger.Error(err))
				if waitErr := waitWithContext(ctx, delay); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("drive request failed: %w", err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("failed to read drive response: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return decodeBody(payload, out)
		}

		if retryable(method, resp.StatusCode) && attempt < c.maxRetries {
			delay := c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))
			c.logger.Warn("drive returned a transient error, retrying",
				logger.String("method", method),
				logger.Int("status", resp.StatusCode),
				logger.Int("attempt", attempt+1),
				logger.Duration("next_retry_in", delay))
			if waitErr := waitWithContext(ctx, delay); waitErr != nil {
				return waitErr
			}
			continue
		}

		return &domain.RemoteError{Status: resp.StatusCode, Message: errorMessage(payload)}
	}
}

func decodeBody(payload []byte, out any) error {
	switch v := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*v = payload
		return nil
	default:
		if len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode drive response: %w", err)
		}
		return nil
	}
}

// errorMessage extracts the message of a Google API error envelope,
// falling back to the raw body.
func errorMessage(payload []byte) string {
	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

// retryable reports whether an answer may be retried. A 5xx on POST may
// come after the file was created, so only a 429 is safe to repeat.
func retryable(method string, status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return idempotent(method) && status >= 500 && status <= 599
}

// retryableError reports whether a transport error may be retried. POST is
// only repeated when the connection was never established.
func retryableError(method string, err error) bool {
	if idempotent(method) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// idempotent covers GET and the media PATCH, which replaces content by id.
func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodPatch
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		return min(retryAfter, c.maxDelay)
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsNotFound reports whether err is a 404 answer from Drive.
func IsNotFound(err error) bool {
	var re *domain.RemoteError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}
