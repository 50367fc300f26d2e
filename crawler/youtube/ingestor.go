// Package youtube turns one configured channel into a list of classified videos
package youtube

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/ytstats/classify"
	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

// DataAPI defines the YouTube Data API calls needed to ingest a channel
type DataAPI interface {
	// ResolveChannelID turns a channel URL or handle into a canonical UC… ID
	ResolveChannelID(ctx context.Context, source string) (string, error)

	// GetChannelStats retrieves channel counters and the uploads playlist ID
	GetChannelStats(ctx context.Context, channelID string) (*youtube.ChannelStats, error)

	// GetUploadedVideos lists every upload of the playlist with its metadata
	GetUploadedVideos(ctx context.Context, playlistID string) ([]youtube.VideoRecord, error)
}

// ShortDetector decides short-form status for a batch of video IDs
type ShortDetector interface {
	DetectBatch(ctx context.Context, ids []string) map[string]bool
}

// IngestResult is everything the store needs to persist one channel
type IngestResult struct {
	ChannelID string
	Stats     youtube.ChannelStats
	Videos    []youtube.ClassifiedVideo
	NewVideos int
}

// Ingestor fetches and classifies the uploads of a single channel
type Ingestor struct {
	api      DataAPI
	detector ShortDetector
	now      func() time.Time
}

// NewIngestor creates an ingestor over the given API client and short detector
func NewIngestor(api DataAPI, detector ShortDetector) *Ingestor {
	return &Ingestor{
		api:      api,
		detector: detector,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for the capture timestamp
func (i *Ingestor) SetClock(now func() time.Time) {
	i.now = now
}

// Ingest resolves, lists and classifies one channel. Videos already present in
// existing keep their cached type unless an override applies; only new videos
// are probed for short-form status.
func (i *Ingestor) Ingest(ctx context.Context, cfg youtube.ChannelConfig, overrides youtube.OverrideTable, existing *youtube.ChannelSnapshot) (*IngestResult, error) {
	channelID := ""
	if existing != nil {
		channelID = existing.ChannelID
	}
	if channelID == "" {
		resolved, err := i.api.ResolveChannelID(ctx, cfg.URL)
		if err != nil {
			log.Error().Err(err).Str("channel", cfg.Name).Str("url", cfg.URL).Msg("Failed to resolve channel ID")
			return nil, &IngestError{Channel: cfg.Name, Stage: StageResolve, Err: err}
		}
		channelID = resolved
		log.Info().Str("channel", cfg.Name).Str("channel_id", channelID).Msg("Resolved channel ID")
	}

	stats, err := i.api.GetChannelStats(ctx, channelID)
	if err != nil {
		log.Error().Err(err).Str("channel", cfg.Name).Str("channel_id", channelID).Msg("Failed to get channel statistics")
		return nil, &IngestError{Channel: cfg.Name, Stage: StageStats, Err: err}
	}
	stats.CapturedAt = youtube.CaptureTimestamp(i.now())

	records, err := i.api.GetUploadedVideos(ctx, stats.UploadsPlaylistID)
	if err != nil {
		log.Error().Err(err).Str("channel", cfg.Name).Str("playlist_id", stats.UploadsPlaylistID).Msg("Failed to list uploaded videos")
		return nil, &IngestError{Channel: cfg.Name, Stage: StageList, Err: err}
	}
	if len(records) == 0 {
		log.Warn().Str("channel", cfg.Name).Str("channel_id", channelID).Msg("No videos returned for channel")
		return nil, &IngestError{Channel: cfg.Name, Stage: StageList, Err: ErrNoVideos}
	}

	var newIDs []string
	for _, rec := range records {
		if _, cached := existing.CachedType(rec.ID); !cached {
			newIDs = append(newIDs, rec.ID)
		}
	}

	log.Info().
		Str("channel", cfg.Name).
		Int("video_count", len(records)).
		Int("new_videos", len(newIDs)).
		Msg("Retrieved uploaded videos")

	shorts := map[string]bool{}
	if len(newIDs) > 0 {
		shorts = i.detector.DetectBatch(ctx, newIDs)
	}

	// probes fail on a cancelled context; classifying now would cache them as Movie for good
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Str("channel", cfg.Name).Int("new_videos", len(newIDs)).Msg("Run cancelled before classification")
		return nil, &IngestError{Channel: cfg.Name, Stage: StageDetect, Err: err}
	}

	videos := make([]youtube.ClassifiedVideo, 0, len(records))
	for _, rec := range records {
		videos = append(videos, i.classify(rec, cfg.Name, shorts, overrides, existing))
	}

	counts := youtube.CountTypes(videos)
	log.Info().
		Str("channel", cfg.Name).
		Int("movie", counts.Movie).
		Int("short", counts.Short).
		Int("live_archive", counts.LiveArchive).
		Msg("Classified channel videos")

	return &IngestResult{
		ChannelID: channelID,
		Stats:     *stats,
		Videos:    videos,
		NewVideos: len(newIDs),
	}, nil
}

func (i *Ingestor) classify(rec youtube.VideoRecord, channelName string, shorts map[string]bool, overrides youtube.OverrideTable, existing *youtube.ChannelSnapshot) youtube.ClassifiedVideo {
	out := youtube.ClassifiedVideo{VideoRecord: rec}

	cached, isCached := existing.CachedType(rec.ID)
	forced, isForced := overrides.Lookup(channelName, rec.ID)

	switch {
	case isForced:
		out.Type = forced
		out.Source = youtube.SourceOverride
		if isCached && cached != forced {
			log.Info().
				Str("channel", channelName).
				Str("video_id", rec.ID).
				Str("title", youtube.TruncateTitle(rec.Title)).
				Str("from", string(cached)).
				Str("to", string(forced)).
				Msg("Override changes cached video type")
		}
	case isCached:
		out.Type = cached
		out.Source = youtube.SourceCache
	default:
		out.Type = classify.Classify(rec, shorts, overrides, channelName)
		out.Source = youtube.SourceDetected
	}
	return out
}
