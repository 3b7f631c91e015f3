package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"tryonapi/models"

	"github.com/vincent-petithory/dataurl"
)

type ImageResolverProvider interface {
	Resolve(ctx context.Context, ref models.ImageReference) (models.ResolvedPayload, error)
}

// ImageResolver turns the three kinds of image references the client can send
// into binary payloads. HTTPClient has no timeout of its own, the request
// context bounds remote fetches.
type ImageResolver struct {
	HTTPClient *http.Client
	Assets     AssetStore
	// MaxBytes caps remote downloads, MaxImageSize when zero.
	MaxBytes int64
}

func NewImageResolver(assets AssetStore) *ImageResolver {
	return &ImageResolver{
		HTTPClient: &http.Client{},
		Assets:     assets,
	}
}

func (r *ImageResolver) Resolve(ctx context.Context, ref models.ImageReference) (models.ResolvedPayload, error) {
	var payload models.ResolvedPayload
	var err error
	switch ref.Kind() {
	case models.ImageSourceInline:
		payload, err = decodeDataURL(ref.Value())
	case models.ImageSourceRemote:
		payload, err = r.fetchRemote(ctx, ref.Value())
	case models.ImageSourceLocal:
		payload, err = r.readLocal(ctx, ref.Value())
	default:
		return payload, &ResolutionError{Kind: UnsupportedFormat, Message: "Unsupported image source format"}
	}
	if err != nil {
		return models.ResolvedPayload{}, err
	}
	if len(payload.Data) == 0 {
		return models.ResolvedPayload{}, &ResolutionError{
			Kind:    EmptyPayload,
			Message: fmt.Sprintf("Image is empty: %s", ref),
		}
	}
	return payload, nil
}

// decodeDataURL handles data:[<mediatype>][;base64],<data>.
func decodeDataURL(raw string) (models.ResolvedPayload, error) {
	meta, body, found := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !found {
		return models.ResolvedPayload{}, &ResolutionError{
			Kind:    MalformedInline,
			Message: "Malformed data URL: missing ',' separator",
		}
	}
	if body == "" {
		return models.ResolvedPayload{}, &ResolutionError{
			Kind:    EmptyPayload,
			Message: "Image is empty: data URL has no content",
		}
	}

	decoded, err := dataurl.DecodeString(raw)
	if err != nil {
		return models.ResolvedPayload{}, &ResolutionError{
			Kind:    MalformedInline,
			Message: "Malformed data URL",
			Err:     err,
		}
	}

	// dataurl reports text/plain when the media type is omitted, sniff instead.
	mimeType := ""
	if mediaType, _, _ := strings.Cut(meta, ";"); strings.Contains(mediaType, "/") {
		mimeType = decoded.ContentType()
	}
	mimeType = normalizeMimeType(mimeType, decoded.Data)
	return models.ResolvedPayload{
		Data:     decoded.Data,
		MimeType: mimeType,
		Name:     payloadFileName("", mimeType),
	}, nil
}

func (r *ImageResolver) fetchRemote(ctx context.Context, rawURL string) (models.ResolvedPayload, error) {
	limit := r.MaxBytes
	if limit <= 0 {
		limit = MaxImageSize
	}
	data, contentType, err := ReadFileFromUrl(ctx, r.HTTPClient, rawURL, limit)
	if errors.Is(err, ErrPayloadTooLarge) {
		return models.ResolvedPayload{}, &ResolutionError{
			Kind:    PayloadTooLarge,
			Message: fmt.Sprintf("Image at %s is larger than %d bytes", rawURL, limit),
			Err:     err,
		}
	}
	if err != nil {
		return models.ResolvedPayload{}, &ResolutionError{
			Kind:    FetchFailed,
			Message: fmt.Sprintf("Failed to fetch %s", rawURL),
			Err:     err,
		}
	}
	if len(data) == 0 {
		return models.ResolvedPayload{}, &ResolutionError{
			Kind:    EmptyPayload,
			Message: fmt.Sprintf("Empty response body from %s", rawURL),
		}
	}

	mimeType := normalizeMimeType(contentType, data)
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = u.Path
	}
	return models.ResolvedPayload{
		Data:     data,
		MimeType: mimeType,
		Name:     payloadFileName(name, mimeType),
	}, nil
}

func (r *ImageResolver) readLocal(ctx context.Context, ref string) (models.ResolvedPayload, error) {
	rel, err := CleanAssetPath(ref)
	if err != nil {
		return models.ResolvedPayload{}, err
	}
	if r.Assets == nil {
		return models.ResolvedPayload{}, &ResolutionError{
			Kind:    FileNotFound,
			Message: fmt.Sprintf("File not found: %s", ref),
		}
	}

	data, err := r.Assets.ReadAsset(ctx, rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.ResolvedPayload{}, &ResolutionError{
				Kind:    FileNotFound,
				Message: fmt.Sprintf("File not found: %s", ref),
			}
		}
		return models.ResolvedPayload{}, &ResolutionError{
			Kind:    FetchFailed,
			Message: fmt.Sprintf("Failed to read asset %s", ref),
			Err:     err,
		}
	}

	mimeType := normalizeMimeType("", data)
	return models.ResolvedPayload{
		Data:     data,
		MimeType: mimeType,
		Name:     payloadFileName(rel, mimeType),
	}, nil
}
