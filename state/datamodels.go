package state

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

// channelStatsKey is the reserved key inside a channel's history holding daily channel totals
const channelStatsKey = "_channel_stats"

// SnapshotDocument is the content of all_snapshots.json, keyed by channel display name
type SnapshotDocument map[string]*youtube.ChannelSnapshot

// HistoryDocument is the content of all_history_{year}.json, keyed by channel display name
type HistoryDocument map[string]*ChannelHistory

// ChannelStatsRecord is one day of channel totals
type ChannelStatsRecord struct {
	Subscribers int64 `json:"subscribers"`
	Views       int64 `json:"views"`
	VideoCount  int64 `json:"video_count"`
}

// DailyRecord is one day of per-video counters
type DailyRecord struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
}

// VideoHistory accumulates one record per calendar day for a video
type VideoHistory struct {
	Title       string                 `json:"title"`
	PublishDate string                 `json:"publishDate"`
	Type        youtube.VideoType      `json:"type"`
	Records     map[string]DailyRecord `json:"records"`
}

// ChannelHistory is a channel's entry in the yearly ledger. On disk the daily
// channel totals and the videos share one object; the totals live under
// "_channel_stats" and every other key is a video ID.
type ChannelHistory struct {
	ChannelStats map[string]ChannelStatsRecord
	Videos       map[string]*VideoHistory
}

func newChannelHistory() *ChannelHistory {
	return &ChannelHistory{
		ChannelStats: make(map[string]ChannelStatsRecord),
		Videos:       make(map[string]*VideoHistory),
	}
}

// MarshalJSON flattens the history into the on-disk shape
func (h ChannelHistory) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(h.Videos)+1)
	if len(h.ChannelStats) > 0 {
		out[channelStatsKey] = h.ChannelStats
	}
	for id, v := range h.Videos {
		if v == nil {
			continue
		}
		out[id] = v
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads the on-disk shape. Video entries that cannot be decoded are dropped.
func (h *ChannelHistory) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*h = *newChannelHistory()
	for key, msg := range raw {
		if key == channelStatsKey {
			var stats map[string]ChannelStatsRecord
			if err := json.Unmarshal(msg, &stats); err != nil {
				return fmt.Errorf("decode %s: %w", channelStatsKey, err)
			}
			for day, rec := range stats {
				h.ChannelStats[day] = rec
			}
			continue
		}

		var v VideoHistory
		if err := json.Unmarshal(msg, &v); err != nil {
			log.Warn().Err(err).Str("video_id", key).Msg("Dropping unreadable history entry")
			continue
		}
		v.normalize()
		h.Videos[key] = &v
	}
	return nil
}

func (v *VideoHistory) normalize() {
	if !v.Type.Valid() {
		v.Type = youtube.VideoTypeMovie
	}
	if v.Records == nil {
		v.Records = make(map[string]DailyRecord)
	}
}

func emptySnapshots() SnapshotDocument { return make(SnapshotDocument) }

func emptyHistory() HistoryDocument { return make(HistoryDocument) }

func decodeSnapshots(data []byte) (SnapshotDocument, error) {
	var doc SnapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return emptySnapshots(), nil
	}

	for name, snap := range doc {
		if snap == nil {
			delete(doc, name)
			continue
		}
		if snap.Videos == nil {
			snap.Videos = make(map[string]youtube.SnapshotVideo)
		}
		for id, v := range snap.Videos {
			if !v.Type.Valid() {
				v.Type = youtube.VideoTypeMovie
				snap.Videos[id] = v
			}
		}
	}
	return doc, nil
}

func decodeHistory(data []byte) (HistoryDocument, error) {
	var doc HistoryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return emptyHistory(), nil
	}

	for name, h := range doc {
		if h == nil {
			delete(doc, name)
		}
	}
	return doc, nil
}
