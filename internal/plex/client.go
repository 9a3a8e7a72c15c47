// Package plex implements the media source on top of the Plex Media Server HTTP API.
package plex

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"plexvoice/internal/core"
)

var _ core.MediaSource = (*Client)(nil)

const (
	libraryIdentifier = "com.plexapp.plugins.library"
	maxErrorBody      = 512
)

// Client talks to one Plex server. Track metadata fetched by key is cached in an LRU; rating a
// track evicts it.
type Client struct {
	config     *core.PlexConfig
	httpClient *http.Client
	cache      *lru.Cache[string, core.Track]
	logger     *zap.Logger

	sectionMutex sync.Mutex
	sectionID    string
}

func NewClient(config *core.PlexConfig, logger *zap.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("plex base URL is required")
	}

	cacheSize := config.MetadataCacheSize
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[string, core.Track](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}

	httpClient := &http.Client{Timeout: config.Timeout}
	if config.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed local servers
		}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		cache:      cache,
		logger:     logger,
	}, nil
}

func (c *Client) SearchTracks(ctx context.Context, title string) ([]core.Track, error) {
	container, err := c.search(ctx, TypeTrack, title)
	if err != nil {
		return nil, err
	}
	return container.tracks(), nil
}

func (c *Client) SearchAlbums(ctx context.Context, title string) ([]core.Album, error) {
	container, err := c.search(ctx, TypeAlbum, title)
	if err != nil {
		return nil, err
	}

	albums := make([]core.Album, 0, len(container.Directories))
	for _, dir := range container.Directories {
		albums = append(albums, core.Album{
			Key:       dir.RatingKey,
			Title:     dir.Title,
			Artist:    dir.ParentTitle,
			LeafCount: dir.LeafCount,
		})
	}
	return albums, nil
}

func (c *Client) SearchArtists(ctx context.Context, name string) ([]core.Artist, error) {
	container, err := c.search(ctx, TypeArtist, name)
	if err != nil {
		return nil, err
	}

	artists := make([]core.Artist, 0, len(container.Directories))
	for _, dir := range container.Directories {
		artists = append(artists, core.Artist{Key: dir.RatingKey, Title: dir.Title})
	}
	return artists, nil
}

// AlbumTracks returns the album's tracks in disc and track order.
func (c *Client) AlbumTracks(ctx context.Context, albumKey string) ([]core.Track, error) {
	container, err := c.get(ctx, "/library/metadata/"+url.PathEscape(albumKey)+"/children", nil)
	if err != nil {
		return nil, err
	}
	return container.tracks(), nil
}

// ArtistTracks returns every track of the artist across all albums.
func (c *Client) ArtistTracks(ctx context.Context, artistKey string) ([]core.Track, error) {
	container, err := c.get(ctx, "/library/metadata/"+url.PathEscape(artistKey)+"/allLeaves", nil)
	if err != nil {
		return nil, err
	}
	return container.tracks(), nil
}

func (c *Client) Playlists(ctx context.Context) ([]core.Playlist, error) {
	container, err := c.get(ctx, "/playlists", url.Values{"playlistType": {"audio"}})
	if err != nil {
		return nil, err
	}

	playlists := make([]core.Playlist, 0, len(container.Playlists))
	for _, p := range container.Playlists {
		playlists = append(playlists, core.Playlist{Key: p.RatingKey, Title: p.Title, LeafCount: p.LeafCount})
	}
	return playlists, nil
}

// PlaylistSize asks for an empty page and reads the container's totalSize.
func (c *Client) PlaylistSize(ctx context.Context, playlistKey string) (int, error) {
	container, err := c.get(ctx, playlistItemsPath(playlistKey), pageQuery(0, 0))
	if err != nil {
		return 0, err
	}

	if container.TotalSize == "" {
		return 0, core.ErrSizeUnavailable
	}
	size, err := strconv.Atoi(container.TotalSize)
	if err != nil {
		return 0, fmt.Errorf("invalid totalSize %q: %w", container.TotalSize, core.ErrSizeUnavailable)
	}
	return size, nil
}

func (c *Client) PlaylistItems(ctx context.Context, playlistKey string, start, size int) ([]core.Track, error) {
	var query url.Values
	if size > 0 {
		query = pageQuery(start, size)
	}

	container, err := c.get(ctx, playlistItemsPath(playlistKey), query)
	if err != nil {
		return nil, err
	}
	return container.tracks(), nil
}

func (c *Client) FetchTrack(ctx context.Context, key string) (*core.Track, error) {
	if track, ok := c.cache.Get(key); ok {
		return &track, nil
	}

	container, err := c.get(ctx, "/library/metadata/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, err
	}
	if len(container.Tracks) == 0 {
		return nil, core.NewError(core.KindNotFound, "fetch track", fmt.Errorf("no track with key %s", key))
	}

	track := container.Tracks[0].toTrack()
	c.cache.Add(key, track)
	return &track, nil
}

// RateTrack sets the user rating on Plex's 0-10 scale.
func (c *Client) RateTrack(ctx context.Context, key string, rating float64) error {
	query := url.Values{
		"key":        {key},
		"identifier": {libraryIdentifier},
		"rating":     {strconv.FormatFloat(rating, 'f', -1, 64)},
	}

	resp, err := c.do(ctx, http.MethodPut, "/:/rate", query)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.cache.Remove(key)
	c.logger.Debug("Rated track", zap.String("trackKey", key), zap.Float64("rating", rating))
	return nil
}

func (c *Client) ArtistNames(ctx context.Context) ([]string, error) {
	section, err := c.musicSection(ctx)
	if err != nil {
		return nil, err
	}

	container, err := c.get(ctx, "/library/sections/"+section+"/all", url.Values{"type": {TypeArtist}})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(container.Directories))
	for _, dir := range container.Directories {
		names = append(names, dir.Title)
	}
	return names, nil
}

// StreamURL builds the direct-play URL of the track's first media part.
func (c *Client) StreamURL(track *core.Track) (string, error) {
	if track.PartKey == "" {
		return "", core.NewError(core.KindValidation, "stream url", fmt.Errorf("track %s has no playable media", track.Key))
	}

	base := c.config.StreamBaseURL
	if base == "" {
		base = c.config.BaseURL
	}
	return strings.TrimRight(base, "/") + track.PartKey + "?X-Plex-Token=" + url.QueryEscape(c.config.Token), nil
}

// Ping checks that the server answers with the configured token.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/identity", nil)
	return err
}

func (c *Client) search(ctx context.Context, plexType, title string) (*mediaContainer, error) {
	section, err := c.musicSection(ctx)
	if err != nil {
		return nil, err
	}

	return c.get(ctx, "/library/sections/"+section+"/search", url.Values{
		"type":  {plexType},
		"title": {title},
	})
}

// musicSection resolves the configured music library section once and caches its id.
func (c *Client) musicSection(ctx context.Context) (string, error) {
	c.sectionMutex.Lock()
	defer c.sectionMutex.Unlock()

	if c.sectionID != "" {
		return c.sectionID, nil
	}

	container, err := c.get(ctx, "/library/sections", nil)
	if err != nil {
		return "", err
	}

	for _, dir := range container.Directories {
		if dir.Type != "artist" {
			continue
		}
		if c.config.MusicSection == "" || strings.EqualFold(dir.Title, c.config.MusicSection) {
			c.sectionID = dir.Key
			c.logger.Info("Resolved music section",
				zap.String("section", dir.Title),
				zap.String("sectionID", dir.Key))
			return c.sectionID, nil
		}
	}

	return "", core.NewError(core.KindNotFound, "music section",
		fmt.Errorf("no music library named %q", c.config.MusicSection))
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*mediaContainer, error) {
	resp, err := c.do(ctx, http.MethodGet, path, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var container mediaContainer
	if err := xml.NewDecoder(resp.Body).Decode(&container); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return &container, nil
}

// do sends an authenticated request and maps error statuses to error kinds: 404 is NotFound,
// 429 and 5xx are Transient, other 4xx are Validation.
func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	reqURL := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("X-Plex-Token", c.config.Token)
	req.Header.Set("X-Plex-Product", "plexvoice")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	statusErr := fmt.Errorf("plex returned status %d for %s %s: %s",
		resp.StatusCode, method, path, strings.TrimSpace(string(body)))

	c.logger.Debug("Plex request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, core.NewError(core.KindNotFound, path, statusErr)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, core.NewError(core.KindTransient, path, statusErr)
	default:
		return nil, core.NewError(core.KindValidation, path, statusErr)
	}
}

func playlistItemsPath(playlistKey string) string {
	return "/playlists/" + url.PathEscape(playlistKey) + "/items"
}

func pageQuery(start, size int) url.Values {
	return url.Values{
		"X-Plex-Container-Start": {strconv.Itoa(start)},
		"X-Plex-Container-Size":  {strconv.Itoa(size)},
	}
}
