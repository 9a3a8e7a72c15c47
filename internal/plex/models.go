package plex

import (
	"encoding/xml"
	"strconv"
	"time"

	"plexvoice/internal/core"
)

// Plex metadata type codes used by the search and listing endpoints.
const (
	TypeArtist = "8"
	TypeAlbum  = "9"
	TypeTrack  = "10"
)

// mediaContainer is the envelope of every Plex XML response.
type mediaContainer struct {
	XMLName     xml.Name    `xml:"MediaContainer"`
	Size        int         `xml:"size,attr"`
	TotalSize   string      `xml:"totalSize,attr"`
	Directories []directory `xml:"Directory"`
	Tracks      []trackXML  `xml:"Track"`
	Playlists   []playlist  `xml:"Playlist"`
}

// directory is a library section, artist or album.
type directory struct {
	Key         string `xml:"key,attr"`
	RatingKey   string `xml:"ratingKey,attr"`
	Type        string `xml:"type,attr"`
	Title       string `xml:"title,attr"`
	ParentTitle string `xml:"parentTitle,attr"`
	LeafCount   int    `xml:"leafCount,attr"`
}

type playlist struct {
	RatingKey    string `xml:"ratingKey,attr"`
	Title        string `xml:"title,attr"`
	PlaylistType string `xml:"playlistType,attr"`
	LeafCount    int    `xml:"leafCount,attr"`
}

type trackXML struct {
	RatingKey        string     `xml:"ratingKey,attr"`
	Title            string     `xml:"title,attr"`
	GrandparentTitle string     `xml:"grandparentTitle,attr"`
	OriginalTitle    string     `xml:"originalTitle,attr"`
	ParentTitle      string     `xml:"parentTitle,attr"`
	Duration         int64      `xml:"duration,attr"`
	UserRating       string     `xml:"userRating,attr"`
	Thumb            string     `xml:"thumb,attr"`
	Media            []mediaXML `xml:"Media"`
}

type mediaXML struct {
	Container  string    `xml:"container,attr"`
	AudioCodec string    `xml:"audioCodec,attr"`
	Bitrate    int       `xml:"bitrate,attr"`
	Parts      []partXML `xml:"Part"`
}

type partXML struct {
	Key       string `xml:"key,attr"`
	Container string `xml:"container,attr"`
}

// toTrack converts a Plex track element. The track artist is the per-track originalTitle when
// set (compilations), otherwise the album artist.
func (t *trackXML) toTrack() core.Track {
	track := core.Track{
		Key:      t.RatingKey,
		Title:    t.Title,
		Artist:   t.GrandparentTitle,
		Album:    t.ParentTitle,
		Duration: time.Duration(t.Duration) * time.Millisecond,
		Thumb:    t.Thumb,
	}
	if t.OriginalTitle != "" {
		track.Artist = t.OriginalTitle
	}

	if t.UserRating != "" {
		if rating, err := strconv.ParseFloat(t.UserRating, 64); err == nil {
			track.UserRating = &rating
		}
	}

	for _, media := range t.Media {
		if len(media.Parts) == 0 || media.Parts[0].Key == "" {
			continue
		}
		track.PartKey = media.Parts[0].Key
		track.Container = media.Container
		track.Codec = media.AudioCodec
		track.Bitrate = media.Bitrate
		break
	}

	return track
}

func (c *mediaContainer) tracks() []core.Track {
	tracks := make([]core.Track, 0, len(c.Tracks))
	for i := range c.Tracks {
		tracks = append(tracks, c.Tracks[i].toTrack())
	}
	return tracks
}
