package core

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"slices"
	"testing"

	"go.uber.org/zap"
)

func newTestSelector(source *fakeSource, maxSize int) *TrackSelector {
	config := QueueConfig{MaxSize: maxSize, PlaylistPageSize: 50, ParallelLookups: 4}
	return NewTrackSelector(source, newTestMatcher(source, nil), testRetry(), config,
		rand.New(rand.NewPCG(1, 2)), zap.NewNop())
}

func keys(tracks []Track) []string {
	result := make([]string, len(tracks))
	for i, t := range tracks {
		result[i] = t.Key
	}
	return result
}

func TestPlayRequest_Target(t *testing.T) {
	tests := []struct {
		name      string
		req       PlayRequest
		kind      RequestKind
		target    string
		wantError bool
	}{
		{"track", PlayRequest{Track: "Yesterday"}, RequestTrack, "Yesterday", false},
		{"playlist with shuffle", PlayRequest{Playlist: " Chill ", Shuffle: true}, RequestPlaylist, "Chill", false},
		{"nothing", PlayRequest{}, "", "", true},
		{"blank only", PlayRequest{Album: "   "}, "", "", true},
		{"two targets", PlayRequest{Track: "a", Artist: "b"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, target, err := tt.req.Target()
			if tt.wantError {
				if !IsValidation(err) {
					t.Errorf("Target() error = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Target() error = %v", err)
			}
			if kind != tt.kind || target != tt.target {
				t.Errorf("Target() = (%q, %q), want (%q, %q)", kind, target, tt.kind, tt.target)
			}
		})
	}
}

func TestTrackSelector_RatingFilter(t *testing.T) {
	source := newFakeSource()
	tracks := makeTracks("t", 5)
	tracks[0].UserRating = float(0)
	tracks[1].UserRating = float(2.0)
	tracks[2].UserRating = float(4.0)
	tracks[3].UserRating = float(6.0)
	// tracks[4] is unrated
	source.albums = []Album{{Key: "album1", Title: "Album"}}
	source.albumTracks["album1"] = tracks

	selection, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Album: "Album"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	expected := []string{"t0", "t2", "t3", "t4"}
	if got := keys(selection.Tracks); !slices.Equal(got, expected) {
		t.Errorf("Select() keys = %v, want %v", got, expected)
	}
}

func TestTrackSelector_Track(t *testing.T) {
	oneStar := Track{Key: "bad", Title: "Yesterday", Artist: "Cover Band", UserRating: float(2.0)}
	partial := Track{Key: "partial", Title: "Yesterday Once More", Artist: "Carpenters"}
	exact := Track{Key: "good", Title: "Yesterday", Artist: "The Beatles"}

	tests := []struct {
		name       string
		results    []Track
		wantKey    string
		wantErr    error
		wantKind   ErrorKind
		wantErrSet bool
	}{
		{name: "exact title preferred over earlier partial", results: []Track{partial, exact}, wantKey: "good"},
		{name: "one-star match skipped", results: []Track{oneStar, exact}, wantKey: "good"},
		{name: "partial used when no exact title", results: []Track{partial}, wantKey: "partial"},
		{name: "empty search", results: nil, wantKind: KindNotFound, wantErrSet: true},
		{name: "only match is one star", results: []Track{oneStar}, wantKind: KindNotFound, wantErr: ErrFilteredOut, wantErrSet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newFakeSource()
			source.tracks = tt.results

			selection, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Track: "Yesterday"})
			if tt.wantErrSet {
				if KindOf(err) != tt.wantKind {
					t.Errorf("Select() error kind = %v, want %v", KindOf(err), tt.wantKind)
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("Select() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if len(selection.Tracks) != 1 || selection.Tracks[0].Key != tt.wantKey {
				t.Errorf("Select() = %v, want [%s]", keys(selection.Tracks), tt.wantKey)
			}
		})
	}
}

func TestTrackSelector_ArtistDedupBeforeCap(t *testing.T) {
	source := newFakeSource()
	source.artistNames = []string{"Queen"}
	source.artists = []Artist{{Key: "artist1", Title: "Queen"}}

	// The same recording on three albums, then three distinct songs.
	hit := Track{Key: "hit", Title: "Bohemian Rhapsody", Artist: "Queen"}
	others := makeTracks("q", 3)
	source.artistTracks["artist1"] = []Track{hit, hit, hit, others[0], others[1], others[2]}

	selection, err := newTestSelector(source, 3).Select(context.Background(), PlayRequest{Artist: "Quen"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	expected := []string{"hit", "q0", "q1"}
	if got := keys(selection.Tracks); !slices.Equal(got, expected) {
		t.Errorf("Select() keys = %v, want %v", got, expected)
	}
	if selection.Name != "Queen" {
		t.Errorf("Select() name = %q, want %q", selection.Name, "Queen")
	}
}

func TestTrackSelector_ArtistNotFound(t *testing.T) {
	source := newFakeSource()
	source.artistNames = []string{"Queen"}

	_, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Artist: "Nobody At All"})
	if !IsNotFound(err) {
		t.Errorf("Select() error = %v, want not found", err)
	}
}

func TestTrackSelector_PlaylistSampling(t *testing.T) {
	source := newFakeSource()
	source.playlists = []Playlist{
		{Key: "p1", Title: "Workout Mix"},
		{Key: "p2", Title: "Chill Evening"},
		{Key: "p3", Title: "Chill Morning"},
	}
	source.playlistData["p2"] = makeTracks("c", 500)

	selection, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Playlist: "chill"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if selection.Name != "Chill Evening" {
		t.Errorf("Select() name = %q, want first matching playlist", selection.Name)
	}
	if len(selection.Tracks) > 150 {
		t.Errorf("Select() returned %d tracks, want <= 150", len(selection.Tracks))
	}
	if len(selection.Tracks) != 150 {
		t.Errorf("Select() returned %d tracks, want 150 from 6 sampled pages", len(selection.Tracks))
	}

	// ceil(2*150/50) = 6 pages out of 10, each fetched once with the page size.
	if len(source.pageCalls) != 6 {
		t.Fatalf("page fetches = %d, want 6", len(source.pageCalls))
	}
	starts := map[int]bool{}
	for _, call := range source.pageCalls {
		if call.size != 50 {
			t.Errorf("page fetch size = %d, want 50", call.size)
		}
		if call.start%50 != 0 || call.start >= 500 {
			t.Errorf("page fetch start = %d, want a page boundary inside the playlist", call.start)
		}
		starts[call.start] = true
	}
	if len(starts) != 6 {
		t.Errorf("distinct pages = %d, want 6", len(starts))
	}

	// Results are concatenated in ascending page order.
	indexOf := func(key string) int {
		return slices.IndexFunc(source.playlistData["p2"], func(t Track) bool { return t.Key == key })
	}
	for i := 1; i < len(selection.Tracks); i++ {
		if indexOf(selection.Tracks[i-1].Key) >= indexOf(selection.Tracks[i].Key) {
			t.Fatalf("tracks out of playlist order at %d", i)
		}
	}
}

func TestTrackSelector_PlaylistWithoutSizeFetchesWhole(t *testing.T) {
	source := newFakeSource()
	source.playlists = []Playlist{{Key: "p1", Title: "Everything"}}
	source.playlistData["p1"] = makeTracks("e", 400)
	source.sizeErr = ErrSizeUnavailable

	selection, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Playlist: "everything"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if len(source.pageCalls) != 1 || source.pageCalls[0].size != 0 {
		t.Errorf("page fetches = %v, want a single whole-playlist fetch", source.pageCalls)
	}
	if len(selection.Tracks) != 150 {
		t.Errorf("Select() returned %d tracks, want 150", len(selection.Tracks))
	}
	if source.callCount("PlaylistSize") != 1 {
		t.Errorf("PlaylistSize called %d times, want 1 (not retried)", source.callCount("PlaylistSize"))
	}
}

func TestTrackSelector_SmallPlaylistFetchedWhole(t *testing.T) {
	source := newFakeSource()
	source.playlists = []Playlist{{Key: "p1", Title: "Short"}}
	source.playlistData["p1"] = makeTracks("s", 20)

	selection, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Playlist: "short"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if len(source.pageCalls) != 1 || source.pageCalls[0].size != 0 {
		t.Errorf("page fetches = %v, want a single whole-playlist fetch", source.pageCalls)
	}
	if len(selection.Tracks) != 20 {
		t.Errorf("Select() returned %d tracks, want 20", len(selection.Tracks))
	}
}

func TestTrackSelector_PlaylistNotFound(t *testing.T) {
	source := newFakeSource()
	source.playlists = []Playlist{{Key: "p1", Title: "Workout"}}

	_, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Playlist: "jazz"})
	if !IsNotFound(err) {
		t.Errorf("Select() error = %v, want not found", err)
	}
}

func TestTrackSelector_ShuffleKeepsSameTracks(t *testing.T) {
	source := newFakeSource()
	source.albums = []Album{{Key: "a", Title: "Album"}}
	source.albumTracks["a"] = makeTracks("t", 30)

	selection, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Album: "Album", Shuffle: true})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	original := keys(source.albumTracks["a"])
	shuffled := keys(selection.Tracks)
	if slices.Equal(original, shuffled) {
		t.Error("shuffled selection should differ from album order")
	}

	slices.Sort(original)
	slices.Sort(shuffled)
	if !slices.Equal(original, shuffled) {
		t.Error("shuffle should keep exactly the same tracks")
	}
}

func TestTrackSelector_TransientSearchIsRetried(t *testing.T) {
	source := newFakeSource()
	source.tracks = []Track{{Key: "k", Title: "Song", Artist: "A"}}
	source.fail("SearchTracks", io.ErrUnexpectedEOF, io.ErrUnexpectedEOF)

	selection, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Track: "Song"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if selection.Tracks[0].Key != "k" {
		t.Errorf("Select() = %v, want [k]", keys(selection.Tracks))
	}
	if calls := source.callCount("SearchTracks"); calls != 3 {
		t.Errorf("SearchTracks called %d times, want 3", calls)
	}
}

func TestTrackSelector_TransientExhaustionSurfaces(t *testing.T) {
	source := newFakeSource()
	source.fail("SearchAlbums", io.ErrUnexpectedEOF, io.ErrUnexpectedEOF, io.ErrUnexpectedEOF, io.ErrUnexpectedEOF)

	_, err := newTestSelector(source, 150).Select(context.Background(), PlayRequest{Album: "x"})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Select() error = %v, want the transient error", err)
	}
}

func TestTrackSelector_Album(t *testing.T) {
	tests := []struct {
		name         string
		albums       []Album
		tracks       []Track
		maxSize      int
		wantKeys     []string
		wantFiltered bool
		wantNotFound bool
	}{
		{
			name:     "first album, duplicates removed, capped",
			albums:   []Album{{Key: "a1", Title: "OK Computer"}, {Key: "a2", Title: "OK Computer (Live)"}},
			tracks:   append(makeTracks("t", 4), makeTracks("t", 2)...),
			maxSize:  3,
			wantKeys: []string{"t0", "t1", "t2"},
		},
		{
			name:         "every track rated one star",
			albums:       []Album{{Key: "a1", Title: "OK Computer"}},
			tracks:       []Track{{Key: "t0", Artist: "Radiohead", UserRating: float(2.0)}},
			maxSize:      150,
			wantNotFound: true,
			wantFiltered: true,
		},
		{
			name:         "no album",
			maxSize:      150,
			wantNotFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newFakeSource()
			source.albums = tt.albums
			source.albumTracks["a1"] = tt.tracks
			source.albumTracks["a2"] = makeTracks("live", 3)

			selection, err := newTestSelector(source, tt.maxSize).Select(context.Background(), PlayRequest{Album: "OK Computer"})
			if tt.wantNotFound {
				if !IsNotFound(err) {
					t.Fatalf("Select() error = %v, want not found", err)
				}
				if errors.Is(err, ErrFilteredOut) != tt.wantFiltered {
					t.Errorf("Select() error = %v, filtered out = %v", err, tt.wantFiltered)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if selection.Kind != RequestAlbum || selection.Name != "OK Computer" {
				t.Errorf("Select() = %s %q", selection.Kind, selection.Name)
			}
			if got := keys(selection.Tracks); !slices.Equal(got, tt.wantKeys) {
				t.Errorf("Select() keys = %v, want %v", got, tt.wantKeys)
			}
		})
	}
}
