package state

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

// DefaultOverridesFile is the operator-maintained override table
const DefaultOverridesFile = "video_type_overrides.json"

// LoadOverrides reads the override table at path. The table is optional: a
// missing or unreadable file yields an empty table and the run continues.
// Entries whose type is not one of the known video types are skipped.
func LoadOverrides(path string) youtube.OverrideTable {
	table := make(youtube.OverrideTable)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("No override file found")
		} else {
			log.Error().Err(err).Str("path", path).Msg("Failed to read override file")
		}
		return table
	}

	var raw map[string]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to parse override file")
		return table
	}

	for channel, videos := range raw {
		for id, value := range videos {
			t, err := youtube.ParseVideoType(value)
			if err != nil {
				log.Warn().
					Str("channel", channel).
					Str("video_id", id).
					Str("value", value).
					Msg("Ignoring override with unknown video type")
				continue
			}
			if table[channel] == nil {
				table[channel] = make(map[string]youtube.VideoType)
			}
			table[channel][id] = t
		}
	}

	log.Info().Int("count", table.Count()).Str("path", path).Msg("Loaded video type overrides")
	return table
}
