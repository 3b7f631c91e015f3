package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/heic": ".heic",
}

// MaxImageSize matches the inbound body limit of the API.
const MaxImageSize int64 = 25 << 20

// ErrPayloadTooLarge is returned by ReadFileFromUrl when the body is over the limit.
var ErrPayloadTooLarge = errors.New("payload exceeds size limit")

// HTTPStatusError is returned by ReadFileFromUrl for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("failed to fetch file, status code: %d", e.StatusCode)
}

// ReadFileFromUrl downloads the whole body of url, at most limit bytes. The
// returned content type comes from the response header and may be empty.
func ReadFileFromUrl(ctx context.Context, httpClient *http.Client, url string, limit int64) ([]byte, string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// Set headers to prevent caching
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > limit {
		return nil, "", fmt.Errorf("content length %d: %w", resp.ContentLength, ErrPayloadTooLarge)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(content)) > limit {
		return nil, "", fmt.Errorf("body over %d bytes: %w", limit, ErrPayloadTooLarge)
	}

	return content, resp.Header.Get("Content-Type"), nil
}

// normalizeMimeType drops parameters and falls back to content sniffing.
func normalizeMimeType(mimeType string, data []byte) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	return mimeType
}

// payloadFileName keeps the base name of the source when it has an extension,
// otherwise it derives one from the mime type.
func payloadFileName(source, mimeType string) string {
	base := path.Base(source)
	if base != "." && base != "/" && path.Ext(base) != "" {
		return base
	}
	if ext, ok := imageExtensions[mimeType]; ok {
		return "image" + ext
	}
	return "blob"
}
