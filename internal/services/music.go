package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/phlockapp/backend/internal/models"
)

// MusicCatalog re-validates track metadata against the streaming platform.
// Lookup is best-effort: callers fall back to their own data on any error.
type MusicCatalog interface {
	Lookup(ctx context.Context, track models.Track) (models.Track, error)
}

// HTTPCatalog resolves tracks against the platform metadata endpoint.
type HTTPCatalog struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCatalog creates a new HTTPCatalog
func NewHTTPCatalog(baseURL string) *HTTPCatalog {
	return &HTTPCatalog{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPCatalog) Lookup(ctx context.Context, track models.Track) (models.Track, error) {
	endpoint := fmt.Sprintf("%s/tracks/%s", c.baseURL, url.PathEscape(track.TrackID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return track, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return track, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return track, fmt.Errorf("catalog lookup returned %d", resp.StatusCode)
	}

	var resolved models.Track
	if err := json.NewDecoder(resp.Body).Decode(&resolved); err != nil {
		return track, err
	}

	// Merge: corrected fields win, caller data fills gaps.
	merged := resolved
	if merged.TrackID == "" {
		merged.TrackID = track.TrackID
	}
	if merged.TrackName == "" {
		merged.TrackName = track.TrackName
	}
	if merged.ArtistName == "" {
		merged.ArtistName = track.ArtistName
	}
	if merged.ArtistPlatformID == "" {
		merged.ArtistPlatformID = track.ArtistPlatformID
	}
	if merged.AlbumArtURL == "" {
		merged.AlbumArtURL = track.AlbumArtURL
	}
	if merged.PreviewURL == "" {
		merged.PreviewURL = track.PreviewURL
	}
	return merged, nil
}

// PassthroughCatalog returns caller-supplied data unchanged; used when no
// platform endpoint is configured.
type PassthroughCatalog struct{}

func (PassthroughCatalog) Lookup(_ context.Context, track models.Track) (models.Track, error) {
	return track, nil
}
