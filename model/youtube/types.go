// Package youtube contains YouTube-specific data models
package youtube

import (
	"fmt"
	"time"
)

const logTitleRunes = 40

// VideoType is the category a video is classified into
type VideoType string

const (
	VideoTypeMovie       VideoType = "Movie"
	VideoTypeShort       VideoType = "Short"
	VideoTypeLiveArchive VideoType = "LiveArchive"
)

// Valid reports whether t is one of the known video types
func (t VideoType) Valid() bool {
	switch t {
	case VideoTypeMovie, VideoTypeShort, VideoTypeLiveArchive:
		return true
	}
	return false
}

// ParseVideoType converts a raw string into a VideoType
func ParseVideoType(s string) (VideoType, error) {
	t := VideoType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown video type %q", s)
	}
	return t, nil
}

// ClassificationSource records how a video's type was obtained
type ClassificationSource string

const (
	SourceOverride ClassificationSource = "override"
	SourceCache    ClassificationSource = "cache"
	SourceDetected ClassificationSource = "detected"
)

// ChannelConfig is one entry of the configured talent roster
type ChannelConfig struct {
	Name string `json:"name" mapstructure:"name"`
	URL  string `json:"url" mapstructure:"url"`
}

// ChannelStats holds channel-level statistics captured during a run
type ChannelStats struct {
	Title           string `json:"title"`
	SubscriberCount int64  `json:"subscribers"`
	ViewCount       int64  `json:"views"`
	VideoCount      int64  `json:"video_count"`
	BannerURL       string `json:"banner_url"`
	CapturedAt      string `json:"captured_at"`

	// UploadsPlaylistID is only needed while listing and is never persisted
	UploadsPlaylistID string `json:"-"`
}

// VideoRecord is a video as returned by the Data API on this run
type VideoRecord struct {
	ID                   string
	Title                string
	PublishedAt          string // YYYY-MM-DD
	ViewCount            int64
	LikeCount            int64
	CommentCount         int64
	Duration             string // ISO-8601, e.g. PT12M3S
	LiveBroadcastContent string // none, upcoming, live, completed
	LiveStreamingStart   string // liveStreamingDetails.actualStartTime, empty when absent
}

// ClassifiedVideo is a VideoRecord with its resolved type
type ClassifiedVideo struct {
	VideoRecord
	Type   VideoType
	Source ClassificationSource
}

// SnapshotVideo is the cached per-video state kept in the snapshot document
type SnapshotVideo struct {
	Title string    `json:"title"`
	Views int64     `json:"views"`
	Likes int64     `json:"likes"`
	Type  VideoType `json:"type"`
}

// ChannelSnapshot is the latest known state of one channel
type ChannelSnapshot struct {
	ChannelID    string                   `json:"channel_id"`
	ChannelStats ChannelStats             `json:"channel_stats"`
	Videos       map[string]SnapshotVideo `json:"videos"`
}

// CachedType returns the type stored for videoID, if any
func (s *ChannelSnapshot) CachedType(videoID string) (VideoType, bool) {
	if s == nil || s.Videos == nil {
		return "", false
	}
	v, ok := s.Videos[videoID]
	if !ok {
		return "", false
	}
	if !v.Type.Valid() {
		return VideoTypeMovie, true
	}
	return v.Type, true
}

// OverrideTable maps channel display name -> video ID -> forced type
type OverrideTable map[string]map[string]VideoType

// Lookup returns the forced type for a video, if the operator configured one
func (o OverrideTable) Lookup(channelName, videoID string) (VideoType, bool) {
	if o == nil {
		return "", false
	}
	videos, ok := o[channelName]
	if !ok {
		return "", false
	}
	t, ok := videos[videoID]
	return t, ok
}

// Count returns the total number of overrides across all channels
func (o OverrideTable) Count() int {
	total := 0
	for _, videos := range o {
		total += len(videos)
	}
	return total
}

// TypeCounts tallies classified videos by type
type TypeCounts struct {
	Movie       int
	Short       int
	LiveArchive int
}

func (c *TypeCounts) add(t VideoType) {
	switch t {
	case VideoTypeShort:
		c.Short++
	case VideoTypeLiveArchive:
		c.LiveArchive++
	default:
		c.Movie++
	}
}

// CountTypes tallies videos by their resolved type
func CountTypes(videos []ClassifiedVideo) TypeCounts {
	var c TypeCounts
	for _, v := range videos {
		c.add(v.Type)
	}
	return c
}

// CountSnapshotTypes tallies the cached videos of a snapshot
func CountSnapshotTypes(snap *ChannelSnapshot) TypeCounts {
	var c TypeCounts
	if snap == nil {
		return c
	}
	for _, v := range snap.Videos {
		c.add(v.Type)
	}
	return c
}

// CaptureTimestamp formats t the way channel_stats.captured_at is stored
func CaptureTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// TruncateTitle shortens a title for log output
func TruncateTitle(title string) string {
	r := []rune(title)
	if len(r) <= logTitleRunes {
		return title
	}
	return string(r[:logTitleRunes])
}
