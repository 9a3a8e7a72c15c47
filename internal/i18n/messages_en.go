package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Error messages
	"error.generic":          "Something went wrong. Please try again.",
	"error.not_found":        "I couldn't find %s in your library.",
	"error.filtered_out":     "Everything I found for %s is rated one star, so I'm skipping it.",
	"error.no_queue":         "Nothing is queued yet. Ask me to play a song, album, artist or playlist.",
	"error.start_of_queue":   "This is already the first song.",
	"error.end_of_queue":     "There are no more songs in the queue.",
	"error.unavailable":      "I can't reach your Plex server right now. Please try again later.",
	"error.invalid_rating":   "Please give a rating from one to five stars.",
	"error.missing_target":   "I didn't catch what you want to hear.",
	"error.unsupported":      "I can't do that yet.",
	"error.nothing_to_rate":  "There is no song to rate right now.",
	"error.nothing_to_play":  "There is nothing left to resume.",
	"error.invalid_listener": "I couldn't tell who is listening.",
	"error.slow_down":        "You're asking a bit fast. Give me a moment and try again.",

	// Questions and prompts
	"prompt.what_to_play":  "What would you like to hear?",
	"prompt.anything_else": "Anything else?",

	// Spoken confirmations
	"speech.welcome":          "Welcome to Plex. What would you like to hear?",
	"speech.playing_track":    "Playing %s by %s.",
	"speech.playing_album":    "Playing the album %s.",
	"speech.playing_artist":   "Playing songs by %s.",
	"speech.playing_playlist": "Playing the playlist %s.",
	"speech.shuffled":         "Shuffled.",
	"speech.shuffle_on":       "Shuffle is on.",
	"speech.shuffle_off":      "Shuffle is off.",
	"speech.now_playing":      "This is %s by %s.",
	"speech.rated":            "Rated %s %d stars.",
	"speech.goodbye":          "Goodbye.",
	"speech.help": "You can ask me to play a song, an album, an artist or a playlist. " +
		"Say next or previous to skip, ask what's playing, or rate the current song from one to five stars.",
}
