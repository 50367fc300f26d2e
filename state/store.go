// Package state persists the latest-state snapshot and the yearly history ledger
package state

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

const (
	// SnapshotFileName holds the latest state of every channel
	SnapshotFileName = "all_snapshots.json"

	historyFilePattern = "all_history_%s.json"
)

// Store merges ingestion results into the snapshot and history documents.
// Each document has its own lock; callers never touch the files directly.
type Store struct {
	dir       string
	snapshots *document[SnapshotDocument]

	historyMu sync.Mutex
	histories map[string]*document[HistoryDocument]
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{
		dir:       dir,
		snapshots: newDocument(filepath.Join(dir, SnapshotFileName), emptySnapshots, decodeSnapshots),
		histories: make(map[string]*document[HistoryDocument]),
	}
}

// SnapshotPath is the location of the snapshot document
func (s *Store) SnapshotPath() string {
	return s.snapshots.path
}

// HistoryPath is the location of the history document for year
func (s *Store) HistoryPath(year string) string {
	return filepath.Join(s.dir, fmt.Sprintf(historyFilePattern, year))
}

func (s *Store) history(year string) *document[HistoryDocument] {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	doc, ok := s.histories[year]
	if !ok {
		doc = newDocument(s.HistoryPath(year), emptyHistory, decodeHistory)
		s.histories[year] = doc
	}
	return doc
}

// LoadSnapshots returns the whole snapshot document
func (s *Store) LoadSnapshots() SnapshotDocument {
	return s.snapshots.Read()
}

// LoadHistory returns the whole history document for year
func (s *Store) LoadHistory(year string) HistoryDocument {
	return s.history(year).Read()
}

// ChannelSnapshot returns the stored snapshot for a channel, or nil
func (s *Store) ChannelSnapshot(channelName string) *youtube.ChannelSnapshot {
	return s.LoadSnapshots()[channelName]
}

// UpdateSnapshot replaces the channel's snapshot entry entirely
func (s *Store) UpdateSnapshot(channelName, channelID string, stats youtube.ChannelStats, videos []youtube.ClassifiedVideo) error {
	entry := &youtube.ChannelSnapshot{
		ChannelID:    channelID,
		ChannelStats: stats,
		Videos:       make(map[string]youtube.SnapshotVideo, len(videos)),
	}
	for _, v := range videos {
		entry.Videos[v.ID] = youtube.SnapshotVideo{
			Title: v.Title,
			Views: v.ViewCount,
			Likes: v.LikeCount,
			Type:  v.Type,
		}
	}

	err := s.snapshots.Update(func(doc SnapshotDocument) error {
		doc[channelName] = entry
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", channelName, err)
	}

	log.Debug().Str("channel", channelName).Str("path", s.SnapshotPath()).Msg("Snapshot saved")
	return nil
}

// UpdateHistory records today's counters for the channel and each of its videos.
// A day holds at most one record: a rerun on the same day overwrites it.
func (s *Store) UpdateHistory(channelName string, videos []youtube.ClassifiedVideo, day, year string, stats *youtube.ChannelStats) error {
	doc := s.history(year)

	err := doc.Update(func(hist HistoryDocument) error {
		ch, ok := hist[channelName]
		if !ok {
			ch = newChannelHistory()
			hist[channelName] = ch
		}

		if stats != nil {
			ch.ChannelStats[day] = ChannelStatsRecord{
				Subscribers: stats.SubscriberCount,
				Views:       stats.ViewCount,
				VideoCount:  stats.VideoCount,
			}
		}

		for _, v := range videos {
			entry, seen := ch.Videos[v.ID]
			if !seen {
				entry = &VideoHistory{
					Title:       v.Title,
					PublishDate: v.PublishedAt,
					Type:        v.Type,
					Records:     make(map[string]DailyRecord),
				}
				ch.Videos[v.ID] = entry
			} else {
				if entry.Type != v.Type {
					log.Info().
						Str("channel", channelName).
						Str("video_id", v.ID).
						Str("title", youtube.TruncateTitle(v.Title)).
						Str("from", string(entry.Type)).
						Str("to", string(v.Type)).
						Msg("Video type updated")
				}
				entry.Type = v.Type
				entry.Title = v.Title
			}

			if prev, ok := entry.Records[day]; ok && v.ViewCount < prev.Views {
				log.Warn().
					Str("channel", channelName).
					Str("video_id", v.ID).
					Str("day", day).
					Int64("previous_views", prev.Views).
					Int64("views", v.ViewCount).
					Msg("Same-day record overwritten with a lower view count")
			}

			entry.Records[day] = DailyRecord{
				Views:    v.ViewCount,
				Likes:    v.LikeCount,
				Comments: v.CommentCount,
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save history for %s: %w", channelName, err)
	}

	log.Debug().Str("channel", channelName).Str("path", doc.path).Msg("History saved")
	return nil
}
