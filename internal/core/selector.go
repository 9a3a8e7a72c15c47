package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"plexvoice/pkg/dedup"
)

type RequestKind string

const (
	RequestTrack    RequestKind = "track"
	RequestAlbum    RequestKind = "album"
	RequestArtist   RequestKind = "artist"
	RequestPlaylist RequestKind = "playlist"
)

// PlayRequest names exactly one track, album, artist or playlist.
type PlayRequest struct {
	Track    string
	Album    string
	Artist   string
	Playlist string
	Shuffle  bool
}

// Target returns the kind and name of the requested entity.
func (r PlayRequest) Target() (RequestKind, string, error) {
	var kind RequestKind
	var name string
	count := 0

	for _, candidate := range []struct {
		kind RequestKind
		name string
	}{
		{RequestTrack, r.Track},
		{RequestAlbum, r.Album},
		{RequestArtist, r.Artist},
		{RequestPlaylist, r.Playlist},
	} {
		if strings.TrimSpace(candidate.name) == "" {
			continue
		}
		kind, name = candidate.kind, strings.TrimSpace(candidate.name)
		count++
	}

	if count != 1 {
		return "", "", NewError(KindValidation, "play request",
			fmt.Errorf("exactly one of track, album, artist or playlist is required, got %d", count))
	}
	return kind, name, nil
}

// Selection is the resolved, ordered list of tracks for a play request.
type Selection struct {
	Kind   RequestKind
	Name   string
	Tracks []Track
}

// TrackSelector resolves play requests into capped, deduplicated, rating-filtered track lists.
type TrackSelector struct {
	source  MediaSource
	matcher *FuzzyMatcher
	retry   *RetryExecutor
	config  QueueConfig
	random  *randomizer
	logger  *zap.Logger
}

// NewTrackSelector creates a selector. A nil rng uses a randomly seeded generator.
func NewTrackSelector(
	source MediaSource,
	matcher *FuzzyMatcher,
	retry *RetryExecutor,
	config QueueConfig,
	rng *rand.Rand,
	logger *zap.Logger,
) *TrackSelector {
	return &TrackSelector{
		source:  source,
		matcher: matcher,
		retry:   retry,
		config:  config,
		random:  newRandomizer(rng),
		logger:  logger,
	}
}

// Select resolves req. NotFound errors are terminal; transient errors have already been retried.
func (s *TrackSelector) Select(ctx context.Context, req PlayRequest) (*Selection, error) {
	kind, name, err := req.Target()
	if err != nil {
		return nil, err
	}

	var selection *Selection
	switch kind {
	case RequestTrack:
		selection, err = s.selectTrack(ctx, name)
	case RequestAlbum:
		selection, err = s.selectAlbum(ctx, name)
	case RequestArtist:
		selection, err = s.selectArtist(ctx, name)
	case RequestPlaylist:
		selection, err = s.selectPlaylist(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	if req.Shuffle && len(selection.Tracks) > 1 {
		s.random.Shuffle(len(selection.Tracks), func(i, j int) {
			selection.Tracks[i], selection.Tracks[j] = selection.Tracks[j], selection.Tracks[i]
		})
	}

	s.logger.Info("Resolved play request",
		zap.String("kind", string(kind)),
		zap.String("requested", name),
		zap.String("resolved", selection.Name),
		zap.Int("tracks", len(selection.Tracks)),
		zap.Bool("shuffle", req.Shuffle))

	return selection, nil
}

func (s *TrackSelector) selectTrack(ctx context.Context, title string) (*Selection, error) {
	const op = "select track"

	tracks, err := Retry(ctx, s.retry, "search tracks", func(ctx context.Context) ([]Track, error) {
		return s.source.SearchTracks(ctx, title)
	})
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, NewError(KindNotFound, op, fmt.Errorf("no track titled %q", title))
	}

	// Exact titles first, keeping the server's ranking within each group.
	slices.SortStableFunc(tracks, func(a, b Track) int {
		return boolRank(strings.EqualFold(a.Title, title)) - boolRank(strings.EqualFold(b.Title, title))
	})

	for _, track := range tracks {
		if track.Playable() {
			return &Selection{Kind: RequestTrack, Name: track.Title, Tracks: []Track{track}}, nil
		}
	}

	return nil, NewError(KindNotFound, op, fmt.Errorf("track %q: %w", title, ErrFilteredOut))
}

func (s *TrackSelector) selectAlbum(ctx context.Context, title string) (*Selection, error) {
	albums, err := Retry(ctx, s.retry, "search albums", func(ctx context.Context) ([]Album, error) {
		return s.source.SearchAlbums(ctx, title)
	})
	if err != nil {
		return nil, err
	}
	if len(albums) == 0 {
		return nil, NewError(KindNotFound, "select album", fmt.Errorf("no album titled %q", title))
	}

	album := albums[0]
	tracks, err := Retry(ctx, s.retry, "album tracks", func(ctx context.Context) ([]Track, error) {
		return s.source.AlbumTracks(ctx, album.Key)
	})
	if err != nil {
		return nil, err
	}

	return s.finish(RequestAlbum, album.Title, tracks)
}

func (s *TrackSelector) selectArtist(ctx context.Context, spoken string) (*Selection, error) {
	name := s.matcher.Match(ctx, spoken)

	artists, err := Retry(ctx, s.retry, "search artists", func(ctx context.Context) ([]Artist, error) {
		return s.source.SearchArtists(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	if len(artists) == 0 {
		return nil, NewError(KindNotFound, "select artist", fmt.Errorf("no artist named %q", name))
	}

	artist := artists[0]
	tracks, err := Retry(ctx, s.retry, "artist tracks", func(ctx context.Context) ([]Track, error) {
		return s.source.ArtistTracks(ctx, artist.Key)
	})
	if err != nil {
		return nil, err
	}

	return s.finish(RequestArtist, artist.Title, tracks)
}

func (s *TrackSelector) selectPlaylist(ctx context.Context, name string) (*Selection, error) {
	playlists, err := Retry(ctx, s.retry, "list playlists", s.source.Playlists)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(name)
	index := slices.IndexFunc(playlists, func(p Playlist) bool {
		return strings.Contains(strings.ToLower(p.Title), needle)
	})
	if index < 0 {
		return nil, NewError(KindNotFound, "select playlist", fmt.Errorf("no playlist matching %q", name))
	}

	playlist := playlists[index]
	tracks, err := s.playlistTracks(ctx, playlist)
	if err != nil {
		return nil, err
	}

	return s.finish(RequestPlaylist, playlist.Title, tracks)
}

// playlistTracks fetches small playlists whole. Large ones are sampled: enough randomly chosen
// pages to gather about twice the queue size, fetched in parallel and joined in page order.
func (s *TrackSelector) playlistTracks(ctx context.Context, playlist Playlist) ([]Track, error) {
	size, err := Retry(ctx, s.retry, "playlist size", func(ctx context.Context) (int, error) {
		return s.source.PlaylistSize(ctx, playlist.Key)
	})
	if err != nil && !IsSizeUnavailable(err) {
		return nil, err
	}

	if err != nil || size <= s.config.MaxSize || s.config.PlaylistPageSize <= 0 {
		if err != nil {
			s.logger.Debug("Playlist size unavailable, fetching whole playlist",
				zap.String("playlist", playlist.Title))
		}
		return s.fetchPlaylistPage(ctx, playlist.Key, 0, 0)
	}

	pages := s.samplePages(size)

	s.logger.Debug("Sampling playlist pages",
		zap.String("playlist", playlist.Title),
		zap.Int("size", size),
		zap.Ints("pages", pages))

	results := make([][]Track, len(pages))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.config.ParallelLookups, 1))

	for i, page := range pages {
		g.Go(func() error {
			items, err := s.fetchPlaylistPage(gCtx, playlist.Key, page*s.config.PlaylistPageSize, s.config.PlaylistPageSize)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return slices.Concat(results...), nil
}

// samplePages picks ceil(2*MaxSize/PlaylistPageSize) distinct page indices uniformly at random
// from every page of the playlist and returns them in ascending order.
func (s *TrackSelector) samplePages(size int) []int {
	pageSize := s.config.PlaylistPageSize
	totalPages := ceilDiv(size, pageSize)
	wanted := min(ceilDiv(2*s.config.MaxSize, pageSize), totalPages)

	pages := s.random.Perm(totalPages)[:wanted]
	slices.Sort(pages)
	return pages
}

func (s *TrackSelector) fetchPlaylistPage(ctx context.Context, key string, start, size int) ([]Track, error) {
	return Retry(ctx, s.retry, "playlist items", func(ctx context.Context) ([]Track, error) {
		return s.source.PlaylistItems(ctx, key, start, size)
	})
}

// finish applies the shared tail of every multi-track selection: dedupe by key, drop one-star
// tracks, cap at MaxSize.
func (s *TrackSelector) finish(kind RequestKind, name string, tracks []Track) (*Selection, error) {
	unique := dedup.Unique(tracks, func(t Track) string { return t.Key })

	playable := make([]Track, 0, len(unique))
	for _, track := range unique {
		if track.Playable() {
			playable = append(playable, track)
		}
	}

	if len(playable) == 0 {
		if len(unique) > 0 {
			return nil, NewError(KindNotFound, "select "+string(kind), fmt.Errorf("%s %q: %w", kind, name, ErrFilteredOut))
		}
		return nil, NewError(KindNotFound, "select "+string(kind), fmt.Errorf("%s %q has no tracks", kind, name))
	}

	s.logger.Debug("Filtered selection",
		zap.String("kind", string(kind)),
		zap.Int("fetched", len(tracks)),
		zap.Int("duplicates", len(tracks)-len(unique)),
		zap.Int("oneStar", len(unique)-len(playable)))

	if s.config.MaxSize > 0 && len(playable) > s.config.MaxSize {
		playable = playable[:s.config.MaxSize]
	}

	return &Selection{Kind: kind, Name: name, Tracks: playable}, nil
}

// IsSizeUnavailable reports whether err means the playlist total is unknown.
func IsSizeUnavailable(err error) bool {
	return errors.Is(err, ErrSizeUnavailable)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func boolRank(exact bool) int {
	if exact {
		return 0
	}
	return 1
}
