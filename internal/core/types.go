package core

import (
	"context"
	"fmt"
	"time"
)

// OneStarRating is the user rating, on Plex's 0-10 scale, that removes a track from selections.
const OneStarRating = 2.0

type Track struct {
	Key        string
	Title      string
	Artist     string
	Album      string
	Duration   time.Duration
	UserRating *float64
	PartKey    string
	Container  string
	Codec      string
	Bitrate    int
	Thumb      string
}

// Descriptor projects the track to the fields persisted with a queue.
func (t *Track) Descriptor() TrackDescriptor {
	return TrackDescriptor{Key: t.Key, Title: t.Title, Artist: t.Artist}
}

// Rated reports whether the track carries an explicit user rating.
func (t *Track) Rated() bool {
	return t.UserRating != nil
}

// Playable reports whether the rating filter lets the track into a queue. Only tracks rated
// exactly one star are rejected; unrated tracks pass.
func (t *Track) Playable() bool {
	return t.UserRating == nil || *t.UserRating != OneStarRating
}

type Album struct {
	Key       string
	Title     string
	Artist    string
	LeafCount int
}

type Artist struct {
	Key   string
	Title string
}

type Playlist struct {
	Key       string
	Title     string
	LeafCount int
}

// TrackDescriptor is the lightweight, immutable projection of a track stored in a queue so
// queue operations never re-fetch metadata.
type TrackDescriptor struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// QueueState is the persisted queue of one listener. An empty queue is represented by the
// record's absence, never by an empty Tracks slice.
type QueueState struct {
	ListenerID   string
	Tracks       []TrackDescriptor
	CurrentIndex int
	Shuffle      bool
}

// IndexOf returns the position of the track with the given key, or -1 if not in the queue.
func (q *QueueState) IndexOf(key string) int {
	for i, track := range q.Tracks {
		if track.Key == key {
			return i
		}
	}
	return -1
}

// At returns the descriptor at position i.
func (q *QueueState) At(i int) (TrackDescriptor, bool) {
	if i < 0 || i >= len(q.Tracks) {
		return TrackDescriptor{}, false
	}
	return q.Tracks[i], true
}

// Current returns the descriptor at CurrentIndex. It is false at the end of the queue.
func (q *QueueState) Current() (TrackDescriptor, bool) {
	return q.At(q.CurrentIndex)
}

func (q *QueueState) Clone() *QueueState {
	clone := *q
	clone.Tracks = append([]TrackDescriptor(nil), q.Tracks...)
	return &clone
}

// Validate checks the invariants every QueueStore enforces on Save.
func (q *QueueState) Validate() error {
	const op = "validate queue"
	switch {
	case q.ListenerID == "":
		return NewError(KindValidation, op, fmt.Errorf("listener id is required"))
	case len(q.Tracks) == 0:
		return NewError(KindValidation, op, fmt.Errorf("queue for %s has no tracks", q.ListenerID))
	case q.CurrentIndex < 0 || q.CurrentIndex > len(q.Tracks):
		return NewError(KindValidation, op,
			fmt.Errorf("index %d outside queue of %d tracks", q.CurrentIndex, len(q.Tracks)))
	}
	return nil
}

type PlayBehavior string

const (
	// BehaviorReplaceAll stops whatever is playing and starts the directive's track
	BehaviorReplaceAll PlayBehavior = "REPLACE_ALL"
	// BehaviorEnqueue appends the track after the one identified by ExpectedPreviousToken
	BehaviorEnqueue PlayBehavior = "ENQUEUE"
)

// PlayDirective tells the playback device what to play. Token is the track key and is echoed
// back by the device in lifecycle events.
type PlayDirective struct {
	Behavior              PlayBehavior
	Track                 Track
	Token                 string
	StreamURL             string
	Title                 string
	Subtitle              string
	Offset                time.Duration
	ExpectedPreviousToken string
}

type FailureClass int

const (
	// FailureOther is any playback failure that a skip would not fix
	FailureOther FailureClass = iota
	// FailureUnreachable means the media server could not be reached for the stream
	FailureUnreachable
)

func (c FailureClass) String() string {
	if c == FailureUnreachable {
		return "unreachable"
	}
	return "other"
}

// ArtistLister lists every artist name in the library.
type ArtistLister interface {
	ArtistNames(ctx context.Context) ([]string, error)
}

// MediaSource is the media server the queue is built from.
type MediaSource interface {
	ArtistLister
	SearchTracks(ctx context.Context, title string) ([]Track, error)
	SearchAlbums(ctx context.Context, title string) ([]Album, error)
	SearchArtists(ctx context.Context, name string) ([]Artist, error)
	AlbumTracks(ctx context.Context, albumKey string) ([]Track, error)
	ArtistTracks(ctx context.Context, artistKey string) ([]Track, error)
	Playlists(ctx context.Context) ([]Playlist, error)
	// PlaylistSize returns ErrSizeUnavailable when the server does not report a total.
	PlaylistSize(ctx context.Context, playlistKey string) (int, error)
	// PlaylistItems returns size items starting at start. size <= 0 returns the whole playlist.
	PlaylistItems(ctx context.Context, playlistKey string, start, size int) ([]Track, error)
	FetchTrack(ctx context.Context, key string) (*Track, error)
	RateTrack(ctx context.Context, key string, rating float64) error
	StreamURL(track *Track) (string, error)
}

// QueueStore persists one QueueState per listener. Get and UpdateIndex return ErrNoQueue when
// the listener has no queue.
type QueueStore interface {
	Save(ctx context.Context, state *QueueState) error
	Get(ctx context.Context, listenerID string) (*QueueState, error)
	UpdateIndex(ctx context.Context, listenerID string, index int) error
}

// Observer receives queue events worth counting.
type Observer interface {
	RecordCorrection(event string)
}

type nopObserver struct{}

func (nopObserver) RecordCorrection(string) {}
