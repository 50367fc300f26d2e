// Package orchestrator runs the daily collection across every configured channel
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/researchaccelerator-hub/ytstats/common"
	ytcrawler "github.com/researchaccelerator-hub/ytstats/crawler/youtube"
	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

// DefaultChannelWorkers is how many channels are ingested at once
const DefaultChannelWorkers = 3

// ChannelIngestor fetches and classifies one channel
type ChannelIngestor interface {
	Ingest(ctx context.Context, cfg youtube.ChannelConfig, overrides youtube.OverrideTable, existing *youtube.ChannelSnapshot) (*ytcrawler.IngestResult, error)
}

// Store persists ingestion results
type Store interface {
	ChannelSnapshot(channelName string) *youtube.ChannelSnapshot
	UpdateSnapshot(channelName, channelID string, stats youtube.ChannelStats, videos []youtube.ClassifiedVideo) error
	UpdateHistory(channelName string, videos []youtube.ClassifiedVideo, day, year string, stats *youtube.ChannelStats) error
}

// Recorder receives run metrics
type Recorder interface {
	ObserveChannel(success bool)
	ObserveVideos(videos []youtube.ClassifiedVideo)
	ObserveRun(elapsed time.Duration, succeeded int, finishedAt time.Time)
}

// Status is the outcome of one channel
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ChannelOutcome summarizes what happened to one channel during a run
type ChannelOutcome struct {
	Name      string
	ChannelID string
	Status    Status
	Stats     youtube.ChannelStats
	Counts    youtube.TypeCounts
	Videos    int
	NewVideos int
	Err       error
	Elapsed   time.Duration
}

// Result is the summary of a whole run
type Result struct {
	RunID     string
	Day       string
	Year      string
	Succeeded int
	Total     int
	Outcomes  []ChannelOutcome // same order as the configured channels
	Elapsed   time.Duration
}

// Options tunes a run
type Options struct {
	ChannelWorkers int
	UTCOffsetHours int
}

// Orchestrator drives ingestion and persistence for a list of channels
type Orchestrator struct {
	ingestor ChannelIngestor
	store    Store
	recorder Recorder
	opts     Options
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. Non-positive worker counts fall back to the default.
func NewOrchestrator(ingestor ChannelIngestor, store Store, opts Options) *Orchestrator {
	if opts.ChannelWorkers < 1 {
		opts.ChannelWorkers = DefaultChannelWorkers
	}
	return &Orchestrator{
		ingestor: ingestor,
		store:    store,
		opts:     opts,
		now:      time.Now,
	}
}

// SetRecorder attaches a metrics recorder
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// SetClock replaces the clock used to pick the run day
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// RunAll processes every channel with bounded parallelism. A failing channel
// never affects the others; the returned Result counts the successes.
func (o *Orchestrator) RunAll(ctx context.Context, channels []youtube.ChannelConfig, overrides youtube.OverrideTable) Result {
	start := o.now()
	day, year := common.RunDate(start, o.opts.UTCOffsetHours)

	result := Result{
		RunID:    common.GenerateRunID(),
		Day:      day,
		Year:     year,
		Total:    len(channels),
		Outcomes: make([]ChannelOutcome, len(channels)),
	}

	logger := log.With().Str("run_id", result.RunID).Logger()
	logger.Info().
		Str("day", day).
		Int("channels", len(channels)).
		Int("workers", o.opts.ChannelWorkers).
		Int("overrides", overrides.Count()).
		Msg("Starting collection run")

	var g errgroup.Group
	g.SetLimit(o.opts.ChannelWorkers)

	for i, ch := range channels {
		g.Go(func() error {
			result.Outcomes[i] = o.runChannel(ctx, logger, ch, overrides, day, year)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range result.Outcomes {
		if out.Status == StatusSuccess {
			result.Succeeded++
		}
	}

	finished := o.now()
	result.Elapsed = finished.Sub(start)
	if o.recorder != nil {
		o.recorder.ObserveRun(result.Elapsed, result.Succeeded, finished)
	}

	logger.Info().
		Int("succeeded", result.Succeeded).
		Int("total", result.Total).
		Dur("elapsed", result.Elapsed).
		Msg("Collection run finished")

	return result
}

// runChannel ingests and stores one channel. Panics are turned into a failed outcome.
func (o *Orchestrator) runChannel(ctx context.Context, logger zerolog.Logger, ch youtube.ChannelConfig, overrides youtube.OverrideTable, day, year string) (out ChannelOutcome) {
	start := time.Now()
	out = ChannelOutcome{Name: ch.Name, Status: StatusFailed}

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic while processing channel: %v", r)
			logger.Error().Str("channel", ch.Name).Interface("panic", r).Msg("Recovered from panic while processing channel")
		}
		out.Elapsed = time.Since(start)
		if o.recorder != nil {
			o.recorder.ObserveChannel(out.Status == StatusSuccess)
		}
	}()

	logger.Info().Str("channel", ch.Name).Msg("Processing channel")

	existing := o.store.ChannelSnapshot(ch.Name)
	res, err := o.ingestor.Ingest(ctx, ch, overrides, existing)
	if err != nil {
		logger.Error().Err(err).Str("channel", ch.Name).Msg("Channel ingestion failed")
		out.Err = err
		return out
	}

	out.ChannelID = res.ChannelID
	out.Stats = res.Stats
	out.Videos = len(res.Videos)
	out.NewVideos = res.NewVideos
	out.Counts = youtube.CountTypes(res.Videos)

	if err := o.store.UpdateSnapshot(ch.Name, res.ChannelID, res.Stats, res.Videos); err != nil {
		logger.Error().Err(err).Str("channel", ch.Name).Msg("Failed to write snapshot")
		out.Err = err
		return out
	}

	stats := res.Stats
	if err := o.store.UpdateHistory(ch.Name, res.Videos, day, year, &stats); err != nil {
		logger.Error().Err(err).Str("channel", ch.Name).Msg("Failed to write history")
		out.Err = err
		return out
	}

	if o.recorder != nil {
		o.recorder.ObserveVideos(res.Videos)
	}

	out.Status = StatusSuccess
	logger.Info().
		Str("channel", ch.Name).
		Int("videos", out.Videos).
		Int("new_videos", out.NewVideos).
		Dur("elapsed", time.Since(start)).
		Msg("Channel processed")
	return out
}
