package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

const (
	// playlistPageSize is the maximum page size accepted by playlistItems.list
	playlistPageSize = 50

	defaultCallTimeout = 30 * time.Second
)

var (
	// ErrNotConnected is returned when a call is made before Connect
	ErrNotConnected = errors.New("YouTube client not connected")

	// ErrChannelNotFound is returned when a channel source cannot be resolved to an ID
	ErrChannelNotFound = errors.New("channel not found on YouTube")
)

var (
	channelStatsParts = []string{"statistics", "snippet", "brandingSettings", "contentDetails"}
	videoParts        = []string{"snippet", "statistics", "liveStreamingDetails", "contentDetails"}
)

// YouTubeDataClient reads channel and video data from the YouTube Data API v3
type YouTubeDataClient struct {
	service     *ytapi.Service
	apiKey      string
	callTimeout time.Duration
	options     []option.ClientOption
}

// NewYouTubeDataClient creates a new YouTube data client. Extra client options
// (for example an endpoint override) are passed through to the service.
func NewYouTubeDataClient(apiKey string, opts ...option.ClientOption) (*YouTubeDataClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}

	return &YouTubeDataClient{
		apiKey:      apiKey,
		callTimeout: defaultCallTimeout,
		options:     opts,
	}, nil
}

// SetCallTimeout bounds every individual API request
func (c *YouTubeDataClient) SetCallTimeout(d time.Duration) {
	if d > 0 {
		c.callTimeout = d
	}
}

// Connect establishes a connection to the YouTube API
func (c *YouTubeDataClient) Connect(ctx context.Context) error {
	log.Debug().Msg("Connecting to YouTube API")

	opts := append([]option.ClientOption{option.WithAPIKey(c.apiKey)}, c.options...)
	service, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create YouTube service")
		return fmt.Errorf("failed to create YouTube service: %w", err)
	}

	c.service = service
	return nil
}

// Disconnect releases the service
func (c *YouTubeDataClient) Disconnect(ctx context.Context) error {
	c.service = nil
	return nil
}

// ResolveChannelID turns a configured channel URL or handle into a stable channel ID.
// Handles (@name) are tried first, then explicit /channel/UC... paths.
func (c *YouTubeDataClient) ResolveChannelID(ctx context.Context, source string) (string, error) {
	if c.service == nil {
		return "", ErrNotConnected
	}

	var handleErr error
	if handle := handleFromSource(source); handle != "" {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		resp, err := c.service.Channels.List([]string{"id"}).ForHandle(handle).Context(callCtx).Do()
		cancel()
		switch {
		case err != nil:
			log.Warn().Err(err).Str("handle", handle).Msg("Failed to resolve channel handle, trying channel ID")
			handleErr = fmt.Errorf("failed to resolve handle %s: %w", handle, err)
		case len(resp.Items) > 0:
			return resp.Items[0].Id, nil
		}
	}

	if id := channelIDFromSource(source); id != "" {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		resp, err := c.service.Channels.List([]string{"id"}).Id(id).Context(callCtx).Do()
		cancel()
		if err != nil {
			log.Error().Err(err).Str("channel_id", id).Msg("Failed to look up channel ID")
			return "", fmt.Errorf("failed to look up channel %s: %w", id, err)
		}
		if len(resp.Items) > 0 {
			return resp.Items[0].Id, nil
		}
	}

	if handleErr != nil {
		log.Error().Err(handleErr).Str("source", source).Msg("Failed to resolve channel")
		return "", handleErr
	}
	return "", fmt.Errorf("%w: %s", ErrChannelNotFound, source)
}

// GetChannelStats fetches statistics, branding and the uploads playlist for a channel
func (c *YouTubeDataClient) GetChannelStats(ctx context.Context, channelID string) (*youtube.ChannelStats, error) {
	if c.service == nil {
		return nil, ErrNotConnected
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	resp, err := c.service.Channels.List(channelStatsParts).Id(channelID).Context(callCtx).Do()
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to get channel from YouTube API")
		return nil, fmt.Errorf("failed to get channel from YouTube API: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}

	item := resp.Items[0]
	stats := &youtube.ChannelStats{}

	if item.Snippet != nil {
		stats.Title = item.Snippet.Title
	}
	if item.Statistics != nil {
		stats.SubscriberCount = int64(item.Statistics.SubscriberCount)
		stats.ViewCount = int64(item.Statistics.ViewCount)
		stats.VideoCount = int64(item.Statistics.VideoCount)
	}
	if item.BrandingSettings != nil && item.BrandingSettings.Image != nil {
		stats.BannerURL = item.BrandingSettings.Image.BannerExternalUrl
	}
	if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
		stats.UploadsPlaylistID = item.ContentDetails.RelatedPlaylists.Uploads
	}
	if stats.UploadsPlaylistID == "" {
		stats.UploadsPlaylistID = uploadsPlaylistFor(item.Id)
	}

	log.Debug().
		Str("channel_id", channelID).
		Str("title", stats.Title).
		Int64("subscribers", stats.SubscriberCount).
		Int64("view_count", stats.ViewCount).
		Int64("video_count", stats.VideoCount).
		Msg("YouTube channel stats retrieved")

	return stats, nil
}

// GetUploadedVideos walks the uploads playlist page by page and fetches full metadata
// for each page with a single videos.list call
func (c *YouTubeDataClient) GetUploadedVideos(ctx context.Context, playlistID string) ([]youtube.VideoRecord, error) {
	if c.service == nil {
		return nil, ErrNotConnected
	}
	if playlistID == "" {
		return nil, fmt.Errorf("uploads playlist ID is empty")
	}

	videos := make([]youtube.VideoRecord, 0)
	var pageToken string

	for {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		call := c.service.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(playlistPageSize).
			Context(callCtx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		cancel()
		if err != nil {
			log.Error().Err(err).Str("playlist_id", playlistID).Msg("Failed to get videos from playlist")
			return nil, fmt.Errorf("failed to get videos from playlist: %w", err)
		}

		videoIDs := make([]string, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
				continue
			}
			videoIDs = append(videoIDs, item.ContentDetails.VideoId)
		}

		if len(videoIDs) > 0 {
			page, err := c.getVideosByIDs(ctx, videoIDs)
			if err != nil {
				return nil, err
			}
			videos = append(videos, page...)
		}

		log.Debug().
			Str("playlist_id", playlistID).
			Int("video_count", len(videos)).
			Msg("Fetching uploads")

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return videos, nil
}

// getVideosByIDs fetches metadata for up to one page of videos, preserving the order of ids.
// Videos the API does not return (private, deleted) are skipped.
func (c *YouTubeDataClient) getVideosByIDs(ctx context.Context, ids []string) ([]youtube.VideoRecord, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	resp, err := c.service.Videos.List(videoParts).Id(ids...).Context(callCtx).Do()
	if err != nil {
		log.Error().Err(err).Strs("video_ids", ids).Msg("Failed to get video metadata")
		return nil, fmt.Errorf("failed to get video metadata: %w", err)
	}

	byID := make(map[string]*ytapi.Video, len(resp.Items))
	for _, item := range resp.Items {
		byID[item.Id] = item
	}

	records := make([]youtube.VideoRecord, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			continue
		}
		records = append(records, toVideoRecord(item))
	}
	return records, nil
}

func toVideoRecord(item *ytapi.Video) youtube.VideoRecord {
	rec := youtube.VideoRecord{ID: item.Id}

	if item.Snippet != nil {
		rec.Title = item.Snippet.Title
		rec.PublishedAt = publishDate(item.Snippet.PublishedAt)
		rec.LiveBroadcastContent = item.Snippet.LiveBroadcastContent
	}
	if item.Statistics != nil {
		rec.ViewCount = int64(item.Statistics.ViewCount)
		rec.LikeCount = int64(item.Statistics.LikeCount)
		rec.CommentCount = int64(item.Statistics.CommentCount)
	}
	if item.ContentDetails != nil {
		rec.Duration = item.ContentDetails.Duration
	}
	if item.LiveStreamingDetails != nil {
		rec.LiveStreamingStart = item.LiveStreamingDetails.ActualStartTime
	}
	return rec
}

// publishDate keeps the calendar date part of an RFC 3339 timestamp
func publishDate(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

// handleFromSource extracts "name" from ".../@name/videos", "@name" and similar
func handleFromSource(source string) string {
	idx := strings.LastIndex(source, "@")
	if idx < 0 {
		return ""
	}
	return trimPathTail(source[idx+1:])
}

// channelIDFromSource extracts the ID from ".../channel/UCxxx" or a bare "UCxxx"
func channelIDFromSource(source string) string {
	if idx := strings.Index(source, "/channel/"); idx >= 0 {
		return trimPathTail(source[idx+len("/channel/"):])
	}
	s := strings.TrimSpace(source)
	if strings.HasPrefix(s, "UC") && !strings.ContainsAny(s, "/@?") {
		return s
	}
	return ""
}

func trimPathTail(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// uploadsPlaylistFor derives the uploads playlist from a channel ID (UCxxx -> UUxxx)
func uploadsPlaylistFor(channelID string) string {
	if strings.HasPrefix(channelID, "UC") {
		return "UU" + channelID[2:]
	}
	return ""
}
