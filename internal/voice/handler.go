package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"plexvoice/internal/core"
	"plexvoice/internal/i18n"
)

const maxRequestBody = 1 << 20

// errThrottled marks a request rejected by the Limiter.
var errThrottled = errors.New("listener is sending requests too fast")

// Selector resolves play requests into tracks.
type Selector interface {
	Select(ctx context.Context, req core.PlayRequest) (*core.Selection, error)
}

// Player is the queue side of the adapter. *core.SessionReconciler implements it.
type Player interface {
	StartQueue(ctx context.Context, listenerID string, tracks []core.Track, shuffle bool) (*core.PlayDirective, error)
	PlaybackStarted(ctx context.Context, listenerID, token string) error
	PlaybackNearlyFinished(ctx context.Context, listenerID, token string) (*core.PlayDirective, error)
	PlaybackFailed(ctx context.Context, listenerID string, class core.FailureClass) (*core.PlayDirective, error)
	Next(ctx context.Context, listenerID string) (*core.PlayDirective, error)
	Previous(ctx context.Context, listenerID string) (*core.PlayDirective, error)
	SetShuffle(ctx context.Context, listenerID string, on bool) (*core.QueueState, error)
	Resume(ctx context.Context, listenerID, token string, offset time.Duration) (*core.PlayDirective, error)
	NowPlaying(ctx context.Context, listenerID string) (core.TrackDescriptor, error)
	RateCurrent(ctx context.Context, listenerID, token string, stars int) (core.TrackDescriptor, error)
}

// Recorder receives request metrics.
type Recorder interface {
	RecordRequest(requestType, status string)
	RecordDirective(directiveType string)
	RecordError(component, kind string)
	RecordProcessingTime(requestType string, duration time.Duration)
}

// Limiter admits or rejects expensive requests per listener. *flood.Floodgate implements it.
type Limiter interface {
	Allow(listenerID string) bool
}

type allowAll struct{}

func (allowAll) Allow(string) bool { return true }

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string)               {}
func (nopRecorder) RecordDirective(string)                     {}
func (nopRecorder) RecordError(string, string)                 {}
func (nopRecorder) RecordProcessingTime(string, time.Duration) {}

// Handler serves voice platform requests for many listeners.
type Handler struct {
	selector Selector
	player   Player
	config   *core.VoiceConfig
	recorder Recorder
	limiter  Limiter
	logger   *zap.Logger
}

func NewHandler(selector Selector, player Player, config *core.VoiceConfig, logger *zap.Logger) *Handler {
	return &Handler{
		selector: selector,
		player:   player,
		config:   config,
		recorder: nopRecorder{},
		limiter:  allowAll{},
		logger:   logger,
	}
}

// SetRecorder registers the metrics sink.
func (h *Handler) SetRecorder(recorder Recorder) {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	h.recorder = recorder
}

// SetLimiter throttles play and rate intents, which fan out into many library calls.
func (h *Handler) SetLimiter(limiter Limiter) {
	if limiter == nil {
		limiter = allowAll{}
	}
	h.limiter = limiter
}

// ServeHTTP decodes a request envelope, handles it and writes the response envelope.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var env RequestEnvelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&env); err != nil {
		h.recorder.RecordRequest("invalid", "rejected")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if h.config.SkillID != "" && env.ApplicationID() != h.config.SkillID {
		h.logger.Warn("Rejected request for foreign application",
			zap.String("applicationID", env.ApplicationID()))
		h.recorder.RecordRequest(requestLabel(&env), "rejected")
		http.Error(w, "unknown application", http.StatusForbidden)
		return
	}

	if env.ListenerID() == "" {
		h.recorder.RecordRequest(requestLabel(&env), "rejected")
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	resp := h.Handle(r.Context(), &env)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Handle dispatches one request. It never fails: errors become spoken responses for user
// requests and empty responses for device events. Work is cut off after RequestTimeout.
func (h *Handler) Handle(ctx context.Context, env *RequestEnvelope) (resp *ResponseEnvelope) {
	start := time.Now()
	if h.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.RequestTimeout)
		defer cancel()
	}
	label := requestLabel(env)
	localizer := i18n.NewLocalizer(i18n.LanguageForLocale(env.Request.Locale, h.config.Language))

	logger := h.logger.With(
		zap.String("requestType", env.Request.Type),
		zap.String("requestID", env.Request.RequestID),
		zap.String("listenerID", env.ListenerID()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while handling request", zap.Any("panic", r), zap.Stack("stack"))
			h.recorder.RecordRequest(label, "panic")
			resp = h.errorResponse(env, localizer, fmt.Errorf("panic: %v", r), "")
		}
		h.recorder.RecordProcessingTime(label, time.Since(start))
	}()

	resp, err := h.dispatch(ctx, env, localizer, logger)
	if errors.Is(err, errThrottled) {
		h.recorder.RecordRequest(label, "throttled")
		logger.Info("Request throttled")
		return resp
	}
	if err != nil {
		h.recorder.RecordRequest(label, "error")
		h.recorder.RecordError("voice", core.KindOf(err).String())
		logger.Warn("Request failed", zap.Error(err))
		return resp
	}

	h.recorder.RecordRequest(label, "ok")
	for _, directive := range resp.Response.Directives {
		h.recorder.RecordDirective(directiveLabel(directive))
	}
	return resp
}

// dispatch returns the response to send. A non-nil error has already been turned into the
// response and is returned for logging.
func (h *Handler) dispatch(ctx context.Context, env *RequestEnvelope, l *i18n.Localizer, logger *zap.Logger) (*ResponseEnvelope, error) {
	listener := env.ListenerID()

	switch env.Request.Type {
	case RequestLaunch:
		return newResponse().
			speak(l.T("speech.welcome")).
			reprompt(l.T("prompt.what_to_play")).
			endSession(false).
			build(), nil

	case RequestIntent:
		return h.handleIntent(ctx, env, l)

	case RequestSessionEnded:
		logger.Debug("Session ended", zap.String("reason", env.Request.Reason))
		return newResponse().build(), nil

	case RequestPlaybackStarted:
		token, _ := env.PlayerToken()
		return h.event(env, l, h.player.PlaybackStarted(ctx, listener, token))

	case RequestPlaybackNearlyFinished:
		token, _ := env.PlayerToken()
		directive, err := h.player.PlaybackNearlyFinished(ctx, listener, token)
		if err != nil {
			return h.event(env, l, err)
		}
		return newResponse().play(directive).build(), nil

	case RequestPlaybackFailed:
		class := failureClass(env.Request.Error)
		if env.Request.Error != nil {
			logger.Warn("Playback failed on device",
				zap.String("errorType", env.Request.Error.Type),
				zap.String("message", env.Request.Error.Message),
				zap.Stringer("class", class))
		}
		directive, err := h.player.PlaybackFailed(ctx, listener, class)
		if err != nil {
			return h.event(env, l, err)
		}
		return newResponse().play(directive).build(), nil

	case RequestPlaybackFinished, RequestPlaybackStopped:
		token, offset := env.PlayerToken()
		logger.Debug("Playback ended on device", zap.String("token", token), zap.Int64("offsetMs", offset))
		return newResponse().build(), nil

	case RequestNextCommand:
		return h.play(env, l)(h.player.Next(ctx, listener))

	case RequestPreviousCommand:
		return h.play(env, l)(h.player.Previous(ctx, listener))

	case RequestPlayCommand:
		return h.resume(ctx, env, l)

	case RequestPauseCommand:
		return newResponse().stop().build(), nil

	case RequestException:
		logger.Warn("Device reported an exception",
			zap.String("errorType", errorType(env.Request.Error)),
			zap.String("message", errorMessage(env.Request.Error)))
		return newResponse().build(), nil

	default:
		logger.Info("Ignoring unsupported request type")
		return newResponse().build(), nil
	}
}

func (h *Handler) handleIntent(ctx context.Context, env *RequestEnvelope, l *i18n.Localizer) (*ResponseEnvelope, error) {
	listener := env.ListenerID()
	intent := env.Request.Intent
	if intent == nil {
		return h.errorResponse(env, l, errors.New("intent request without intent"), ""), nil
	}

	if (intent.Name == IntentPlayMusic || intent.Name == IntentRateTrack) && !h.limiter.Allow(listener) {
		return newResponse().speak(l.T("error.slow_down")).endSession(true).build(), errThrottled
	}

	switch intent.Name {
	case IntentPlayMusic:
		return h.playMusic(ctx, env, l)

	case IntentNext:
		return h.play(env, l)(h.player.Next(ctx, listener))

	case IntentPrevious:
		return h.play(env, l)(h.player.Previous(ctx, listener))

	case IntentShuffleOn, IntentShuffleOff:
		on := intent.Name == IntentShuffleOn
		if _, err := h.player.SetShuffle(ctx, listener, on); err != nil {
			return h.errorResponse(env, l, err, ""), err
		}
		key := "speech.shuffle_off"
		if on {
			key = "speech.shuffle_on"
		}
		return newResponse().speak(l.T(key)).endSession(true).build(), nil

	case IntentPause:
		return newResponse().stop().endSession(true).build(), nil

	case IntentResume:
		return h.resume(ctx, env, l)

	case IntentNowPlaying:
		current, err := h.player.NowPlaying(ctx, listener)
		if err != nil {
			return h.errorResponse(env, l, err, ""), err
		}
		return newResponse().
			speak(l.T("speech.now_playing", current.Title, current.Artist)).
			endSession(true).
			build(), nil

	case IntentRateTrack:
		return h.rate(ctx, env, l)

	case IntentHelp:
		return newResponse().
			speak(l.T("speech.help")).
			reprompt(l.T("prompt.what_to_play")).
			endSession(false).
			build(), nil

	case IntentCancel, IntentStop:
		return newResponse().speak(l.T("speech.goodbye")).stop().endSession(true).build(), nil

	default:
		return newResponse().speak(l.T("error.unsupported")).endSession(true).build(), nil
	}
}

func (h *Handler) playMusic(ctx context.Context, env *RequestEnvelope, l *i18n.Localizer) (*ResponseEnvelope, error) {
	intent := env.Request.Intent
	req := core.PlayRequest{
		Track:    intent.Slot(SlotTrack),
		Album:    intent.Slot(SlotAlbum),
		Artist:   intent.Slot(SlotArtist),
		Playlist: intent.Slot(SlotPlaylist),
		Shuffle:  shuffleRequested(intent.Slot(SlotShuffle)),
	}

	kind, name, err := req.Target()
	if err != nil {
		return newResponse().
			speak(l.T("error.missing_target")+" "+l.T("prompt.what_to_play")).
			reprompt(l.T("prompt.what_to_play")).
			endSession(false).
			build(), err
	}

	selection, err := h.selector.Select(ctx, req)
	if err != nil {
		return h.errorResponse(env, l, err, name), err
	}

	directive, err := h.player.StartQueue(ctx, env.ListenerID(), selection.Tracks, req.Shuffle)
	if err != nil {
		return h.errorResponse(env, l, err, name), err
	}

	var speech string
	switch kind {
	case core.RequestTrack:
		speech = l.T("speech.playing_track", directive.Title, directive.Subtitle)
	case core.RequestAlbum:
		speech = l.T("speech.playing_album", selection.Name)
	case core.RequestArtist:
		speech = l.T("speech.playing_artist", selection.Name)
	case core.RequestPlaylist:
		speech = l.T("speech.playing_playlist", selection.Name)
	}

	return newResponse().speak(speech).play(directive).endSession(true).build(), nil
}

func (h *Handler) resume(ctx context.Context, env *RequestEnvelope, l *i18n.Localizer) (*ResponseEnvelope, error) {
	token, offset := env.PlayerToken()
	directive, err := h.player.Resume(ctx, env.ListenerID(), token, time.Duration(offset)*time.Millisecond)
	if err != nil {
		if errors.Is(err, core.ErrEndOfQueue) && !isDeviceEvent(env) {
			return newResponse().speak(l.T("error.nothing_to_play")).endSession(true).build(), err
		}
		return h.errorResponse(env, l, err, ""), err
	}

	resp := newResponse().play(directive)
	if !isDeviceEvent(env) {
		resp.endSession(true)
	}
	return resp.build(), nil
}

func (h *Handler) rate(ctx context.Context, env *RequestEnvelope, l *i18n.Localizer) (*ResponseEnvelope, error) {
	stars, err := strconv.Atoi(env.Request.Intent.Slot(SlotRating))
	if err != nil || stars < 1 || stars > 5 {
		return newResponse().speak(l.T("error.invalid_rating")).endSession(true).build(),
			core.NewError(core.KindValidation, "rate track", fmt.Errorf("invalid rating %q", env.Request.Intent.Slot(SlotRating)))
	}

	token, _ := env.PlayerToken()
	rated, err := h.player.RateCurrent(ctx, env.ListenerID(), token, stars)
	if err != nil {
		if errors.Is(err, core.ErrEndOfQueue) {
			return newResponse().speak(l.T("error.nothing_to_rate")).endSession(true).build(), err
		}
		return h.errorResponse(env, l, err, ""), err
	}

	return newResponse().speak(l.T("speech.rated", rated.Title, stars)).endSession(true).build(), nil
}

// play adapts a navigation result to a response.
func (h *Handler) play(env *RequestEnvelope, l *i18n.Localizer) func(*core.PlayDirective, error) (*ResponseEnvelope, error) {
	return func(directive *core.PlayDirective, err error) (*ResponseEnvelope, error) {
		if err != nil {
			return h.errorResponse(env, l, err, ""), err
		}
		resp := newResponse().play(directive)
		if !isDeviceEvent(env) {
			resp.endSession(true)
		}
		return resp.build(), nil
	}
}

// event builds the response to a device lifecycle event.
func (h *Handler) event(env *RequestEnvelope, l *i18n.Localizer, err error) (*ResponseEnvelope, error) {
	if err != nil {
		return h.errorResponse(env, l, err, ""), err
	}
	return newResponse().build(), nil
}

// errorResponse turns err into speech. Device events must not carry speech, so they get an
// empty response.
func (h *Handler) errorResponse(env *RequestEnvelope, l *i18n.Localizer, err error, name string) *ResponseEnvelope {
	if isDeviceEvent(env) {
		return newResponse().build()
	}
	return newResponse().speak(errorSpeech(l, err, name)).endSession(true).build()
}

func errorSpeech(l *i18n.Localizer, err error, name string) string {
	switch {
	case errors.Is(err, core.ErrNoQueue):
		return l.T("error.no_queue")
	case errors.Is(err, core.ErrStartOfQueue):
		return l.T("error.start_of_queue")
	case errors.Is(err, core.ErrEndOfQueue):
		return l.T("error.end_of_queue")
	case errors.Is(err, core.ErrFilteredOut):
		return l.T("error.filtered_out", name)
	case core.IsNotFound(err) && name != "":
		return l.T("error.not_found", name)
	case core.IsTransient(err):
		return l.T("error.unavailable")
	default:
		return l.T("error.generic")
	}
}

// failureClass treats upstream outages as worth one skip; anything else ends playback.
func failureClass(playbackErr *PlaybackError) core.FailureClass {
	if playbackErr == nil {
		return core.FailureOther
	}
	switch playbackErr.Type {
	case errorServiceUnavailable, errorInternalServerError:
		return core.FailureUnreachable
	default:
		return core.FailureOther
	}
}

// shuffleRequested interprets the optional shuffle slot. Any value other than an explicit
// negative counts as a request to shuffle.
func shuffleRequested(value string) bool {
	switch strings.ToLower(value) {
	case "", "no", "off", "false", "nein", "aus":
		return false
	default:
		return true
	}
}

func isDeviceEvent(env *RequestEnvelope) bool {
	return strings.HasPrefix(env.Request.Type, "AudioPlayer.") ||
		strings.HasPrefix(env.Request.Type, "PlaybackController.")
}

// requestLabel names the request for metrics, collapsing unknown values so label cardinality
// stays bounded.
func requestLabel(env *RequestEnvelope) string {
	switch env.Request.Type {
	case RequestIntent:
		if env.Request.Intent == nil {
			return "UnknownIntent"
		}
		switch env.Request.Intent.Name {
		case IntentPlayMusic, IntentNowPlaying, IntentRateTrack, IntentNext, IntentPrevious,
			IntentShuffleOn, IntentShuffleOff, IntentPause, IntentResume, IntentHelp, IntentCancel, IntentStop:
			return env.Request.Intent.Name
		default:
			return "UnknownIntent"
		}
	case RequestLaunch, RequestSessionEnded, RequestException,
		RequestPlaybackStarted, RequestPlaybackNearlyFinished, RequestPlaybackFailed,
		RequestPlaybackFinished, RequestPlaybackStopped,
		RequestNextCommand, RequestPreviousCommand, RequestPlayCommand, RequestPauseCommand:
		return env.Request.Type
	default:
		return "Unknown"
	}
}

func directiveLabel(d Directive) string {
	if d.PlayBehavior != "" {
		return d.Type + "/" + d.PlayBehavior
	}
	return d.Type
}

func errorType(e *PlaybackError) string {
	if e == nil {
		return ""
	}
	return e.Type
}

func errorMessage(e *PlaybackError) string {
	if e == nil {
		return ""
	}
	return e.Message
}
