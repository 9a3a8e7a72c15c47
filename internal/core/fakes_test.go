package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

func float(v float64) *float64 { return &v }

func testRetry() *RetryExecutor {
	r := NewRetryExecutor(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, zap.NewNop())
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func makeTracks(prefix string, n int) []Track {
	tracks := make([]Track, n)
	for i := range tracks {
		tracks[i] = Track{
			Key:     fmt.Sprintf("%s%d", prefix, i),
			Title:   fmt.Sprintf("Song %d", i),
			Artist:  "Artist",
			PartKey: fmt.Sprintf("/library/parts/%s%d/file.flac", prefix, i),
		}
	}
	return tracks
}

type pageCall struct {
	start int
	size  int
}

// fakeSource is an in-memory MediaSource. Failures are injected per method name.
type fakeSource struct {
	mutex sync.Mutex

	tracks       []Track
	albums       []Album
	artists      []Artist
	albumTracks  map[string][]Track
	artistTracks map[string][]Track
	playlists    []Playlist
	playlistData map[string][]Track
	sizeErr      error
	artistNames  []string
	library      map[string]Track

	failures  map[string][]error
	calls     map[string]int
	pageCalls []pageCall
	ratings   map[string]float64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		albumTracks:  map[string][]Track{},
		artistTracks: map[string][]Track{},
		playlistData: map[string][]Track{},
		library:      map[string]Track{},
		failures:     map[string][]error{},
		calls:        map[string]int{},
		ratings:      map[string]float64{},
	}
}

func (f *fakeSource) addLibrary(tracks ...Track) {
	for _, t := range tracks {
		f.library[t.Key] = t
	}
}

// fail queues errors returned by the next calls to method, one per call.
func (f *fakeSource) fail(method string, errs ...error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.failures[method] = append(f.failures[method], errs...)
}

func (f *fakeSource) enter(method string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls[method]++
	if queued := f.failures[method]; len(queued) > 0 {
		f.failures[method] = queued[1:]
		return queued[0]
	}
	return nil
}

func (f *fakeSource) callCount(method string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls[method]
}

func (f *fakeSource) SearchTracks(_ context.Context, _ string) ([]Track, error) {
	if err := f.enter("SearchTracks"); err != nil {
		return nil, err
	}
	return append([]Track(nil), f.tracks...), nil
}

func (f *fakeSource) SearchAlbums(_ context.Context, _ string) ([]Album, error) {
	if err := f.enter("SearchAlbums"); err != nil {
		return nil, err
	}
	return f.albums, nil
}

func (f *fakeSource) SearchArtists(_ context.Context, name string) ([]Artist, error) {
	if err := f.enter("SearchArtists"); err != nil {
		return nil, err
	}
	var matches []Artist
	for _, a := range f.artists {
		if a.Title == name {
			matches = append(matches, a)
		}
	}
	return matches, nil
}

func (f *fakeSource) AlbumTracks(_ context.Context, key string) ([]Track, error) {
	if err := f.enter("AlbumTracks"); err != nil {
		return nil, err
	}
	return f.albumTracks[key], nil
}

func (f *fakeSource) ArtistTracks(_ context.Context, key string) ([]Track, error) {
	if err := f.enter("ArtistTracks"); err != nil {
		return nil, err
	}
	return f.artistTracks[key], nil
}

func (f *fakeSource) Playlists(context.Context) ([]Playlist, error) {
	if err := f.enter("Playlists"); err != nil {
		return nil, err
	}
	return f.playlists, nil
}

func (f *fakeSource) PlaylistSize(_ context.Context, key string) (int, error) {
	if err := f.enter("PlaylistSize"); err != nil {
		return 0, err
	}
	if f.sizeErr != nil {
		return 0, f.sizeErr
	}
	return len(f.playlistData[key]), nil
}

func (f *fakeSource) PlaylistItems(_ context.Context, key string, start, size int) ([]Track, error) {
	if err := f.enter("PlaylistItems"); err != nil {
		return nil, err
	}

	f.mutex.Lock()
	f.pageCalls = append(f.pageCalls, pageCall{start: start, size: size})
	f.mutex.Unlock()

	items := f.playlistData[key]
	if size <= 0 {
		return append([]Track(nil), items...), nil
	}
	if start >= len(items) {
		return nil, nil
	}
	end := min(start+size, len(items))
	return append([]Track(nil), items[start:end]...), nil
}

func (f *fakeSource) FetchTrack(_ context.Context, key string) (*Track, error) {
	if err := f.enter("FetchTrack"); err != nil {
		return nil, err
	}
	track, ok := f.library[key]
	if !ok {
		return nil, NewError(KindNotFound, "fetch track", fmt.Errorf("no track %s", key))
	}
	return &track, nil
}

func (f *fakeSource) RateTrack(_ context.Context, key string, rating float64) error {
	if err := f.enter("RateTrack"); err != nil {
		return err
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.ratings[key] = rating
	return nil
}

func (f *fakeSource) ArtistNames(context.Context) ([]string, error) {
	if err := f.enter("ArtistNames"); err != nil {
		return nil, err
	}
	return f.artistNames, nil
}

func (f *fakeSource) StreamURL(track *Track) (string, error) {
	if track.PartKey == "" {
		return "", NewError(KindValidation, "stream url", fmt.Errorf("track %s has no media", track.Key))
	}
	return "https://plex.test" + track.PartKey + "?X-Plex-Token=secret", nil
}

// fakeStore is a QueueStore that counts writes.
type fakeStore struct {
	mutex   sync.Mutex
	queues  map[string]*QueueState
	saves   int
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{queues: map[string]*QueueState{}}
}

func (s *fakeStore) Save(_ context.Context, state *QueueState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.saves++
	s.queues[state.ListenerID] = state.Clone()
	return nil
}

func (s *fakeStore) Get(_ context.Context, listenerID string) (*QueueState, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	state, ok := s.queues[listenerID]
	if !ok {
		return nil, ErrNoQueue
	}
	return state.Clone(), nil
}

func (s *fakeStore) UpdateIndex(_ context.Context, listenerID string, index int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	state, ok := s.queues[listenerID]
	if !ok {
		return ErrNoQueue
	}
	s.updates++
	state.CurrentIndex = index
	return nil
}

func (s *fakeStore) seed(listenerID string, tracks []Track, index int) {
	descriptors := make([]TrackDescriptor, len(tracks))
	for i := range tracks {
		descriptors[i] = tracks[i].Descriptor()
	}
	s.queues[listenerID] = &QueueState{ListenerID: listenerID, Tracks: descriptors, CurrentIndex: index}
}

func (s *fakeStore) index(listenerID string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.queues[listenerID].CurrentIndex
}

// countingObserver records correction events.
type countingObserver struct {
	events []string
}

func (o *countingObserver) RecordCorrection(event string) {
	o.events = append(o.events, event)
}
