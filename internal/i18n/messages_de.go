package i18n

// germanMessages contains all German translations.
var germanMessages = map[string]string{
	// Fehlermeldungen
	"error.generic":          "Da ist etwas schiefgelaufen. Bitte versuch es noch einmal.",
	"error.not_found":        "Ich habe %s nicht in deiner Bibliothek gefunden.",
	"error.filtered_out":     "Alles, was ich zu %s gefunden habe, ist mit einem Stern bewertet. Ich überspringe es.",
	"error.no_queue":         "Es ist noch nichts in der Warteschlange. Sag mir einen Song, ein Album, einen Künstler oder eine Playlist.",
	"error.start_of_queue":   "Das ist schon der erste Song.",
	"error.end_of_queue":     "Es sind keine weiteren Songs in der Warteschlange.",
	"error.unavailable":      "Ich erreiche deinen Plex-Server gerade nicht. Bitte versuch es später noch einmal.",
	"error.invalid_rating":   "Bitte bewerte mit einem bis fünf Sternen.",
	"error.missing_target":   "Ich habe nicht verstanden, was du hören möchtest.",
	"error.unsupported":      "Das kann ich noch nicht.",
	"error.nothing_to_rate":  "Gerade läuft kein Song, den ich bewerten kann.",
	"error.nothing_to_play":  "Es gibt nichts zum Fortsetzen.",
	"error.invalid_listener": "Ich konnte nicht erkennen, wer zuhört.",
	"error.slow_down":        "Das war etwas schnell. Warte einen Moment und versuch es noch einmal.",

	// Fragen
	"prompt.what_to_play":  "Was möchtest du hören?",
	"prompt.anything_else": "Noch etwas?",

	// Ansagen
	"speech.welcome":          "Willkommen bei Plex. Was möchtest du hören?",
	"speech.playing_track":    "Ich spiele %s von %s.",
	"speech.playing_album":    "Ich spiele das Album %s.",
	"speech.playing_artist":   "Ich spiele Songs von %s.",
	"speech.playing_playlist": "Ich spiele die Playlist %s.",
	"speech.shuffled":         "Neu gemischt.",
	"speech.shuffle_on":       "Zufallswiedergabe ist an.",
	"speech.shuffle_off":      "Zufallswiedergabe ist aus.",
	"speech.now_playing":      "Das ist %s von %s.",
	"speech.rated":            "%s mit %d Sternen bewertet.",
	"speech.goodbye":          "Tschüss.",
	"speech.help": "Du kannst mich bitten, einen Song, ein Album, einen Künstler oder eine Playlist zu spielen. " +
		"Sag weiter oder zurück zum Springen, frag, was gerade läuft, oder bewerte den Song mit einem bis fünf Sternen.",
}
