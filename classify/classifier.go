// Package classify decides whether a video is a regular upload, a Short or a live archive
package classify

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sosodev/duration"

	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

// LiveArchiveMinMinutes is the minimum length of a finished broadcast that counts as an archive.
// Shorter completed broadcasts are almost always clipped highlights.
const LiveArchiveMinMinutes = 6.0

const liveBroadcastCompleted = "completed"

// Classify resolves the type of a single video. Rules are evaluated in order:
//  1. operator override for (channelName, video.ID)
//  2. short-form detection result
//  3. finished live broadcast, split on duration
//  4. Movie
func Classify(video youtube.VideoRecord, shorts map[string]bool, overrides youtube.OverrideTable, channelName string) youtube.VideoType {
	if forced, ok := overrides.Lookup(channelName, video.ID); ok {
		log.Debug().
			Str("channel", channelName).
			Str("video_id", video.ID).
			Str("title", youtube.TruncateTitle(video.Title)).
			Str("type", string(forced)).
			Msg("Applying video type override")
		return forced
	}

	if shorts[video.ID] {
		return youtube.VideoTypeShort
	}

	// Both triggers are kept on purpose: either one alone marks a broadcast.
	if video.LiveBroadcastContent == liveBroadcastCompleted || video.LiveStreamingStart != "" {
		if DurationMinutes(video.Duration) >= LiveArchiveMinMinutes {
			return youtube.VideoTypeLiveArchive
		}
		return youtube.VideoTypeMovie
	}

	return youtube.VideoTypeMovie
}

// DurationMinutes converts an ISO-8601 duration to minutes. Empty or malformed input yields 0.
func DurationMinutes(iso string) float64 {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return 0
	}
	d, err := duration.Parse(iso)
	if err != nil {
		return 0
	}
	return d.ToTimeDuration().Minutes()
}
