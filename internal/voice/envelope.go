// Package voice adapts Alexa-style skill requests to queue operations.
package voice

import (
	"strings"

	"plexvoice/internal/core"
)

// Request types sent by the voice platform.
const (
	RequestLaunch       = "LaunchRequest"
	RequestIntent       = "IntentRequest"
	RequestSessionEnded = "SessionEndedRequest"

	RequestPlaybackStarted        = "AudioPlayer.PlaybackStarted"
	RequestPlaybackNearlyFinished = "AudioPlayer.PlaybackNearlyFinished"
	RequestPlaybackFailed         = "AudioPlayer.PlaybackFailed"
	RequestPlaybackFinished       = "AudioPlayer.PlaybackFinished"
	RequestPlaybackStopped        = "AudioPlayer.PlaybackStopped"

	RequestNextCommand     = "PlaybackController.NextCommandIssued"
	RequestPreviousCommand = "PlaybackController.PreviousCommandIssued"
	RequestPlayCommand     = "PlaybackController.PlayCommandIssued"
	RequestPauseCommand    = "PlaybackController.PauseCommandIssued"

	RequestException = "System.ExceptionEncountered"
)

// Intent names.
const (
	IntentPlayMusic  = "PlayMusicIntent"
	IntentNowPlaying = "NowPlayingIntent"
	IntentRateTrack  = "RateTrackIntent"
	IntentNext       = "AMAZON.NextIntent"
	IntentPrevious   = "AMAZON.PreviousIntent"
	IntentShuffleOn  = "AMAZON.ShuffleOnIntent"
	IntentShuffleOff = "AMAZON.ShuffleOffIntent"
	IntentPause      = "AMAZON.PauseIntent"
	IntentResume     = "AMAZON.ResumeIntent"
	IntentHelp       = "AMAZON.HelpIntent"
	IntentCancel     = "AMAZON.CancelIntent"
	IntentStop       = "AMAZON.StopIntent"
)

// Slot names of PlayMusicIntent and RateTrackIntent.
const (
	SlotTrack    = "track"
	SlotAlbum    = "album"
	SlotArtist   = "artist"
	SlotPlaylist = "playlist"
	SlotShuffle  = "shuffle"
	SlotRating   = "rating"
)

const (
	envelopeVersion = "1.0"

	directivePlay = "AudioPlayer.Play"
	directiveStop = "AudioPlayer.Stop"

	speechPlainText = "PlainText"

	// errorServiceUnavailable is the playback error raised when the stream host cannot be reached.
	errorServiceUnavailable = "MEDIA_ERROR_SERVICE_UNAVAILABLE"
	// errorInternalServerError is raised when the stream host answered with a server error.
	errorInternalServerError = "MEDIA_ERROR_INTERNAL_SERVER_ERROR"
)

type RequestEnvelope struct {
	Version string   `json:"version"`
	Session *Session `json:"session,omitempty"`
	Context Context  `json:"context"`
	Request Request  `json:"request"`
}

type Session struct {
	New         bool        `json:"new"`
	SessionID   string      `json:"sessionId"`
	Application Application `json:"application"`
	User        User        `json:"user"`
}

type Context struct {
	System      System            `json:"System"`
	AudioPlayer *AudioPlayerState `json:"AudioPlayer,omitempty"`
}

type System struct {
	Application Application `json:"application"`
	User        User        `json:"user"`
	Device      Device      `json:"device"`
}

type Application struct {
	ApplicationID string `json:"applicationId"`
}

type User struct {
	UserID string `json:"userId"`
}

type Device struct {
	DeviceID string `json:"deviceId"`
}

// AudioPlayerState is the device's view of playback at the time of the request.
type AudioPlayerState struct {
	Token                string `json:"token"`
	OffsetInMilliseconds int64  `json:"offsetInMilliseconds"`
	PlayerActivity       string `json:"playerActivity"`
}

type Request struct {
	Type                 string         `json:"type"`
	RequestID            string         `json:"requestId"`
	Timestamp            string         `json:"timestamp"`
	Locale               string         `json:"locale"`
	Intent               *Intent        `json:"intent,omitempty"`
	Token                string         `json:"token,omitempty"`
	OffsetInMilliseconds int64          `json:"offsetInMilliseconds,omitempty"`
	Error                *PlaybackError `json:"error,omitempty"`
	Reason               string         `json:"reason,omitempty"`
}

type Intent struct {
	Name  string          `json:"name"`
	Slots map[string]Slot `json:"slots,omitempty"`
}

// Slot returns the trimmed value of the named slot, or "" if absent.
func (i *Intent) Slot(name string) string {
	if i == nil {
		return ""
	}
	return strings.TrimSpace(i.Slots[name].Value)
}

type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

type PlaybackError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ListenerID is the stable id of the account the request is made for.
func (e *RequestEnvelope) ListenerID() string {
	return e.Context.System.User.UserID
}

// ApplicationID is the skill the request was addressed to.
func (e *RequestEnvelope) ApplicationID() string {
	if id := e.Context.System.Application.ApplicationID; id != "" {
		return id
	}
	if e.Session != nil {
		return e.Session.Application.ApplicationID
	}
	return ""
}

// PlayerToken returns the token and offset the device reports, from the request itself for
// AudioPlayer events and from the AudioPlayer context otherwise.
func (e *RequestEnvelope) PlayerToken() (string, int64) {
	if e.Request.Token != "" {
		return e.Request.Token, e.Request.OffsetInMilliseconds
	}
	if e.Context.AudioPlayer != nil {
		return e.Context.AudioPlayer.Token, e.Context.AudioPlayer.OffsetInMilliseconds
	}
	return "", 0
}

type ResponseEnvelope struct {
	Version  string   `json:"version"`
	Response Response `json:"response"`
}

type Response struct {
	OutputSpeech     *OutputSpeech `json:"outputSpeech,omitempty"`
	Reprompt         *Reprompt     `json:"reprompt,omitempty"`
	Directives       []Directive   `json:"directives,omitempty"`
	ShouldEndSession *bool         `json:"shouldEndSession,omitempty"`
}

type OutputSpeech struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Reprompt struct {
	OutputSpeech OutputSpeech `json:"outputSpeech"`
}

type Directive struct {
	Type         string     `json:"type"`
	PlayBehavior string     `json:"playBehavior,omitempty"`
	AudioItem    *AudioItem `json:"audioItem,omitempty"`
}

type AudioItem struct {
	Stream   Stream         `json:"stream"`
	Metadata *AudioMetadata `json:"metadata,omitempty"`
}

type Stream struct {
	URL                   string `json:"url"`
	Token                 string `json:"token"`
	ExpectedPreviousToken string `json:"expectedPreviousToken,omitempty"`
	OffsetInMilliseconds  int64  `json:"offsetInMilliseconds"`
}

type AudioMetadata struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// responseBuilder assembles a response envelope.
type responseBuilder struct {
	response Response
}

func newResponse() *responseBuilder {
	return &responseBuilder{}
}

func (b *responseBuilder) speak(text string) *responseBuilder {
	b.response.OutputSpeech = &OutputSpeech{Type: speechPlainText, Text: text}
	return b
}

func (b *responseBuilder) reprompt(text string) *responseBuilder {
	b.response.Reprompt = &Reprompt{OutputSpeech: OutputSpeech{Type: speechPlainText, Text: text}}
	return b
}

func (b *responseBuilder) endSession(end bool) *responseBuilder {
	b.response.ShouldEndSession = &end
	return b
}

func (b *responseBuilder) play(d *core.PlayDirective) *responseBuilder {
	if d == nil {
		return b
	}
	b.response.Directives = append(b.response.Directives, Directive{
		Type:         directivePlay,
		PlayBehavior: string(d.Behavior),
		AudioItem: &AudioItem{
			Stream: Stream{
				URL:                   d.StreamURL,
				Token:                 d.Token,
				ExpectedPreviousToken: d.ExpectedPreviousToken,
				OffsetInMilliseconds:  d.Offset.Milliseconds(),
			},
			Metadata: &AudioMetadata{Title: d.Title, Subtitle: d.Subtitle},
		},
	})
	return b
}

func (b *responseBuilder) stop() *responseBuilder {
	b.response.Directives = append(b.response.Directives, Directive{Type: directiveStop})
	return b
}

func (b *responseBuilder) build() *ResponseEnvelope {
	return &ResponseEnvelope{Version: envelopeVersion, Response: b.response}
}
