package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shikkhasathi/offline/internal/domain"
)

type discoverResponse struct {
	Content []domain.DownloadableContent `json:"content"`
}

// DiscoverContent asks the backend for downloadable content matching the
// selection. Only descriptors come back; no lesson bytes are transferred.
func (c *Client) DiscoverContent(ctx context.Context, sel domain.ContentSelection) ([]domain.DownloadableContent, error) {
	var payload discoverResponse
	if err := c.postJSON(ctx, "/content/discover", sel, &payload); err != nil {
		return nil, err
	}
	return payload.Content, nil
}

// FetchContent opens a streaming body for a content id, resuming from the
// given byte offset. The caller owns the returned reader and must close it.
func (c *Client) FetchContent(ctx context.Context, id string, offset int64) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/content/"+id+"/download", nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content fetch for %s failed: %w", id, err)
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusOK:
		if offset > 0 {
			// The server ignored the range header; restarting from zero here
			// would silently corrupt the resume offset.
			resp.Body.Close()
			return nil, fmt.Errorf("server ignored range request for %s at offset %d", id, offset)
		}
		return resp.Body, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
}
