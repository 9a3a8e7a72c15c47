package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// SessionReconciler keeps each listener's stored queue position in line with what the playback
// device reports. Lifecycle events for one listener may race; the device-reported token is
// treated as ground truth and the stored index is corrected to match it.
type SessionReconciler struct {
	store    QueueStore
	source   MediaSource
	retry    *RetryExecutor
	config   QueueConfig
	random   *randomizer
	observer Observer
	logger   *zap.Logger
}

// NewSessionReconciler creates a reconciler. A nil rng uses a randomly seeded generator.
func NewSessionReconciler(
	store QueueStore,
	source MediaSource,
	retry *RetryExecutor,
	config QueueConfig,
	rng *rand.Rand,
	logger *zap.Logger,
) *SessionReconciler {
	return &SessionReconciler{
		store:    store,
		source:   source,
		retry:    retry,
		config:   config,
		random:   newRandomizer(rng),
		observer: nopObserver{},
		logger:   logger,
	}
}

// SetObserver registers the receiver of correction events.
func (r *SessionReconciler) SetObserver(observer Observer) {
	if observer == nil {
		observer = nopObserver{}
	}
	r.observer = observer
}

// StartQueue replaces the listener's queue with tracks, positioned at the first track, and
// returns the directive that starts it.
func (r *SessionReconciler) StartQueue(ctx context.Context, listenerID string, tracks []Track, shuffle bool) (*PlayDirective, error) {
	descriptors := describeTracks(ctx, r.source, r.retry, r.config.ParallelLookups, tracks, r.logger)
	if len(descriptors) == 0 {
		return nil, NewError(KindNotFound, "start queue", fmt.Errorf("none of %d tracks could be described", len(tracks)))
	}

	state := &QueueState{
		ListenerID:   listenerID,
		Tracks:       descriptors,
		CurrentIndex: 0,
		Shuffle:      shuffle,
	}
	if err := r.save(ctx, state); err != nil {
		return nil, err
	}

	r.logger.Info("Queue started",
		zap.String("listenerID", listenerID),
		zap.Int("tracks", len(descriptors)),
		zap.Int("dropped", len(tracks)-len(descriptors)),
		zap.Bool("shuffle", shuffle))

	// The selection already carries full tracks, so the first one needs no re-fetch.
	for _, track := range tracks {
		if track.Key == descriptors[0].Key {
			track.Artist = descriptors[0].Artist
			return r.directiveFor(&track, BehaviorReplaceAll, 0, "")
		}
	}
	return r.directive(ctx, descriptors[0], BehaviorReplaceAll, 0, "")
}

// PlaybackStarted moves the stored index to the track the device started. Tokens that are not
// in the queue leave it unchanged.
func (r *SessionReconciler) PlaybackStarted(ctx context.Context, listenerID, token string) error {
	state, err := r.get(ctx, listenerID)
	if err != nil {
		return err
	}

	index := state.IndexOf(token)
	if index < 0 {
		r.logger.Debug("Started track is not in the queue",
			zap.String("listenerID", listenerID),
			zap.String("token", token))
		return nil
	}

	if index == state.CurrentIndex {
		return nil
	}

	return r.correct(ctx, state, index, "playback_started")
}

// PlaybackNearlyFinished corrects the stored index to the finishing track if it drifted, then
// returns an ENQUEUE directive for the track after it. The index itself is not advanced; the
// next PlaybackStarted does that. A nil directive means there is nothing to enqueue.
func (r *SessionReconciler) PlaybackNearlyFinished(ctx context.Context, listenerID, token string) (*PlayDirective, error) {
	state, err := r.get(ctx, listenerID)
	if err != nil {
		return nil, err
	}

	actual := state.IndexOf(token)
	if actual < 0 {
		r.logger.Debug("Finishing track is not in the queue, nothing to enqueue",
			zap.String("listenerID", listenerID),
			zap.String("token", token))
		return nil, nil
	}

	if actual != state.CurrentIndex {
		if err := r.correct(ctx, state, actual, "nearly_finished"); err != nil {
			return nil, err
		}
	}

	next, ok := state.At(actual + 1)
	if !ok {
		r.logger.Debug("End of queue reached",
			zap.String("listenerID", listenerID),
			zap.Int("index", actual))
		return nil, nil
	}

	return r.directive(ctx, next, BehaviorEnqueue, 0, token)
}

// PlaybackFailed skips to the next track when the source was unreachable, writing the new index
// immediately. Other failures are only logged.
func (r *SessionReconciler) PlaybackFailed(ctx context.Context, listenerID string, class FailureClass) (*PlayDirective, error) {
	if class != FailureUnreachable {
		r.logger.Warn("Playback failed, not recovering",
			zap.String("listenerID", listenerID),
			zap.Stringer("class", class))
		return nil, nil
	}

	state, err := r.get(ctx, listenerID)
	if err != nil {
		return nil, err
	}

	next := state.CurrentIndex + 1
	target, ok := state.At(next)
	if !ok {
		r.logger.Info("Playback failed on the last track, nothing to skip to",
			zap.String("listenerID", listenerID))
		return nil, nil
	}

	if err := r.correct(ctx, state, next, "playback_failed"); err != nil {
		return nil, err
	}

	return r.directive(ctx, target, BehaviorReplaceAll, 0, "")
}

// Next returns a directive for the following track without writing the store; the index
// follows on PlaybackStarted.
func (r *SessionReconciler) Next(ctx context.Context, listenerID string) (*PlayDirective, error) {
	return r.step(ctx, listenerID, 1)
}

// Previous is Next in the other direction.
func (r *SessionReconciler) Previous(ctx context.Context, listenerID string) (*PlayDirective, error) {
	return r.step(ctx, listenerID, -1)
}

func (r *SessionReconciler) step(ctx context.Context, listenerID string, delta int) (*PlayDirective, error) {
	state, err := r.get(ctx, listenerID)
	if err != nil {
		return nil, err
	}

	target, ok := state.At(state.CurrentIndex + delta)
	if !ok {
		boundary := ErrEndOfQueue
		if delta < 0 {
			boundary = ErrStartOfQueue
		}
		r.logger.Debug("Navigation past queue boundary",
			zap.String("listenerID", listenerID),
			zap.Int("index", state.CurrentIndex),
			zap.Int("delta", delta))
		return nil, NewError(KindBoundary, "navigate", boundary)
	}

	return r.directive(ctx, target, BehaviorReplaceAll, 0, "")
}

// Reshuffle permutes the queue in place and moves the current track to the front so what is
// playing stays put. A queue that already played to the end stays at its end.
func (r *SessionReconciler) Reshuffle(ctx context.Context, listenerID string) (*QueueState, error) {
	state, err := r.get(ctx, listenerID)
	if err != nil {
		return nil, err
	}

	current, playing := state.Current()

	tracks := state.Tracks
	r.random.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})

	state.CurrentIndex = len(tracks)
	if playing {
		from := state.IndexOf(current.Key)
		copy(tracks[1:from+1], tracks[:from])
		tracks[0] = current
		state.CurrentIndex = 0
	}
	state.Shuffle = true

	if err := r.save(ctx, state); err != nil {
		return nil, err
	}

	r.logger.Info("Queue reshuffled",
		zap.String("listenerID", listenerID),
		zap.Int("tracks", len(tracks)),
		zap.String("current", current.Key))

	return state, nil
}

// SetShuffle turns shuffle on by reshuffling, or off by clearing the flag. Turning it off keeps
// the current order.
func (r *SessionReconciler) SetShuffle(ctx context.Context, listenerID string, on bool) (*QueueState, error) {
	if on {
		return r.Reshuffle(ctx, listenerID)
	}

	state, err := r.get(ctx, listenerID)
	if err != nil {
		return nil, err
	}
	if !state.Shuffle {
		return state, nil
	}

	state.Shuffle = false
	if err := r.save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Resume restarts the track identified by token at offset. An unknown or empty token resumes
// the stored current track from its start.
func (r *SessionReconciler) Resume(ctx context.Context, listenerID, token string, offset time.Duration) (*PlayDirective, error) {
	state, err := r.get(ctx, listenerID)
	if err != nil {
		return nil, err
	}

	if index := state.IndexOf(token); token != "" && index >= 0 {
		return r.directive(ctx, state.Tracks[index], BehaviorReplaceAll, max(offset, 0), "")
	}

	current, ok := state.Current()
	if !ok {
		return nil, NewError(KindBoundary, "resume", ErrEndOfQueue)
	}
	return r.directive(ctx, current, BehaviorReplaceAll, 0, "")
}

// NowPlaying returns the stored current track.
func (r *SessionReconciler) NowPlaying(ctx context.Context, listenerID string) (TrackDescriptor, error) {
	state, err := r.get(ctx, listenerID)
	if err != nil {
		return TrackDescriptor{}, err
	}

	current, ok := state.Current()
	if !ok {
		return TrackDescriptor{}, NewError(KindBoundary, "now playing", ErrEndOfQueue)
	}
	return current, nil
}

// RateCurrent rates the track identified by token, or the stored current track when token is
// not in the queue, with 1 to 5 stars.
func (r *SessionReconciler) RateCurrent(ctx context.Context, listenerID, token string, stars int) (TrackDescriptor, error) {
	if stars < 1 || stars > 5 {
		return TrackDescriptor{}, NewError(KindValidation, "rate track", fmt.Errorf("rating must be 1 to 5 stars, got %d", stars))
	}

	state, err := r.get(ctx, listenerID)
	if err != nil {
		return TrackDescriptor{}, err
	}

	index := state.IndexOf(token)
	if token == "" || index < 0 {
		index = state.CurrentIndex
	}
	target, ok := state.At(index)
	if !ok {
		return TrackDescriptor{}, NewError(KindBoundary, "rate track", ErrEndOfQueue)
	}

	rating := float64(stars * 2)
	if err := r.retry.Do(ctx, "rate track", func(ctx context.Context) error {
		return r.source.RateTrack(ctx, target.Key, rating)
	}); err != nil {
		return TrackDescriptor{}, err
	}

	r.logger.Info("Track rated",
		zap.String("listenerID", listenerID),
		zap.String("trackKey", target.Key),
		zap.Float64("rating", rating))

	return target, nil
}

func (r *SessionReconciler) correct(ctx context.Context, state *QueueState, index int, event string) error {
	r.logger.Info("Correcting queue position",
		zap.String("listenerID", state.ListenerID),
		zap.String("event", event),
		zap.Int("storedIndex", state.CurrentIndex),
		zap.Int("actualIndex", index))

	if err := r.retry.Do(ctx, "update queue index", func(ctx context.Context) error {
		return r.store.UpdateIndex(ctx, state.ListenerID, index)
	}); err != nil {
		return err
	}

	state.CurrentIndex = index
	r.observer.RecordCorrection(event)
	return nil
}

func (r *SessionReconciler) get(ctx context.Context, listenerID string) (*QueueState, error) {
	return Retry(ctx, r.retry, "get queue", func(ctx context.Context) (*QueueState, error) {
		return r.store.Get(ctx, listenerID)
	})
}

func (r *SessionReconciler) save(ctx context.Context, state *QueueState) error {
	return r.retry.Do(ctx, "save queue", func(ctx context.Context) error {
		return r.store.Save(ctx, state)
	})
}

// directive resolves a queued descriptor to its full track and builds a play directive.
func (r *SessionReconciler) directive(
	ctx context.Context,
	descriptor TrackDescriptor,
	behavior PlayBehavior,
	offset time.Duration,
	expectedPrevious string,
) (*PlayDirective, error) {
	track, err := Retry(ctx, r.retry, "fetch track", func(ctx context.Context) (*Track, error) {
		return r.source.FetchTrack(ctx, descriptor.Key)
	})
	if err != nil {
		return nil, err
	}

	if track.Artist == "" {
		track.Artist = descriptor.Artist
	}
	return r.directiveFor(track, behavior, offset, expectedPrevious)
}

func (r *SessionReconciler) directiveFor(track *Track, behavior PlayBehavior, offset time.Duration, expectedPrevious string) (*PlayDirective, error) {
	streamURL, err := r.source.StreamURL(track)
	if err != nil {
		return nil, err
	}

	return &PlayDirective{
		Behavior:              behavior,
		Track:                 *track,
		Token:                 track.Key,
		StreamURL:             streamURL,
		Title:                 track.Title,
		Subtitle:              track.Artist,
		Offset:                offset,
		ExpectedPreviousToken: expectedPrevious,
	}, nil
}
