package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
)

// Space hosts only change when a space is renamed or moved.
const spaceHostExpiration = 30 * time.Minute

type SpaceHostResolver interface {
	GetHost(ctx context.Context, space string) (string, error)
}

// SpaceHostCache maps a Hugging Face space id ("owner/name") to the host that
// serves its Gradio app.
type SpaceHostCache struct {
	cache *cache.LoadableCache[string]
}

type spaceHostResponse struct {
	Subdomain string `json:"subdomain"`
	Host      string `json:"host"`
}

func NewSpaceHostCache(httpClient *http.Client, apiURL string, token string) (*SpaceHostCache, error) {
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	ristrettoStore := ristretto_store.NewRistretto(ristrettoCache)

	loadFunction := func(ctx context.Context, key any) (string, []store.Option, error) {
		space, ok := key.(string)
		if !ok {
			return "", nil, fmt.Errorf("invalid key type provided to space host cache: expected string, got %T", key)
		}
		log.Printf("[Cache] Miss for space %s, asking %s", space, apiURL)
		host, err := lookupSpaceHost(ctx, httpClient, apiURL, token, space)
		return host, []store.Option{store.WithExpiration(spaceHostExpiration)}, err
	}

	return &SpaceHostCache{
		cache: cache.NewLoadable[string](loadFunction, cache.New[string](ristrettoStore)),
	}, nil
}

// GetHost returns the space host. Full URLs are used as they are. When the
// lookup itself fails the host is derived from the space id, except for auth
// rejections which are returned to the caller.
func (s *SpaceHostCache) GetHost(ctx context.Context, space string) (string, error) {
	if strings.HasPrefix(space, "http://") || strings.HasPrefix(space, "https://") {
		return strings.TrimRight(space, "/"), nil
	}

	host, err := s.cache.Get(ctx, space)
	if err == nil && host != "" {
		return host, nil
	}

	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) && gatewayErr.Kind == AuthRejected {
		return "", err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &GatewayError{Kind: ConnectionFailed, Message: "Space lookup aborted", Err: ctxErr}
	}
	fallback := DeriveSpaceHost(space)
	log.Printf("[Cache] Host lookup for %s failed: %v. Falling back to %s", space, err, fallback)
	return fallback, nil
}

// DeriveSpaceHost builds the conventional *.hf.space host of a space id.
func DeriveSpaceHost(space string) string {
	subdomain := strings.NewReplacer("/", "-", "_", "-", ".", "-").Replace(strings.ToLower(space))
	return fmt.Sprintf("https://%s.hf.space", subdomain)
}

func lookupSpaceHost(ctx context.Context, httpClient *http.Client, apiURL, token, space string) (string, error) {
	url := fmt.Sprintf("%s/api/spaces/%s/host", strings.TrimRight(apiURL, "/"), space)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", &GatewayError{Kind: ConnectionFailed, Message: fmt.Sprintf("Could not reach %s", apiURL), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &GatewayError{Kind: AuthRejected, Message: fmt.Sprintf("Access to space %s was rejected", space)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("space host lookup returned %d: %s", resp.StatusCode, string(body))
	}

	var payload spaceHostResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode space host response: %w", err)
	}
	if payload.Host == "" {
		return "", fmt.Errorf("space host response for %s has no host", space)
	}
	return strings.TrimRight(payload.Host, "/"), nil
}
