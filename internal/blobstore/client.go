// Package blobstore talks to the Supabase storage REST API for product images.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type SignedUpload struct {
	SignedURL string `json:"signed_url"`
	Token     string `json:"token"`
	Path      string `json:"path"`
}

// StorageError is a non-2xx answer from the storage API.
type StorageError struct {
	StatusCode int
	Message    string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage returned status %d: %s", e.StatusCode, e.Message)
}

// Client is bound to one bucket.
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

func NewClient(baseURL, serviceKey, bucket string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: httpClient,
	}
}

func (c *Client) Bucket() string {
	return c.bucket
}

// CreateSignedUploadURL reserves path in the bucket and returns a URL the
// browser can upload to directly.
func (c *Client) CreateSignedUploadURL(ctx context.Context, path string) (*SignedUpload, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/upload/sign/%s/%s", c.baseURL, c.bucket, escapePath(path))

	var body struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, nil, &body); err != nil {
		return nil, fmt.Errorf("create signed upload url for %s: %w", path, err)
	}

	signed, err := url.Parse(c.baseURL + "/storage/v1" + body.URL)
	if err != nil {
		return nil, fmt.Errorf("parse signed upload url: %w", err)
	}
	token := signed.Query().Get("token")
	if token == "" {
		return nil, fmt.Errorf("signed upload url for %s has no token", path)
	}

	return &SignedUpload{
		SignedURL: signed.String(),
		Token:     token,
		Path:      path,
	}, nil
}

func (c *Client) PublicURL(path string) string {
	return c.publicPrefix() + escapePath(path)
}

// ObjectPath extracts the object path from a public URL of this bucket.
// It returns false for URLs that point anywhere else.
func (c *Client) ObjectPath(publicURL string) (string, bool) {
	rest, ok := strings.CutPrefix(publicURL, c.publicPrefix())
	if !ok || rest == "" {
		return "", false
	}
	path, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return path, true
}

func (c *Client) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	payload := map[string][]string{"prefixes": paths}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", c.baseURL, c.bucket)
	if err := c.do(ctx, http.MethodDelete, endpoint, payload, nil); err != nil {
		return fmt.Errorf("remove %d objects: %w", len(paths), err)
	}
	return nil
}

func (c *Client) publicPrefix() string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/", c.baseURL, c.bucket)
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var reqBody io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		return &StorageError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func escapePath(path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
