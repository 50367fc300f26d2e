package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTypes(t *testing.T) {
	videos := []ClassifiedVideo{
		{Type: VideoTypeShort},
		{Type: VideoTypeShort},
		{Type: VideoTypeLiveArchive},
		{Type: VideoTypeMovie},
		{Type: ""},
	}
	assert.Equal(t, TypeCounts{Movie: 2, Short: 2, LiveArchive: 1}, CountTypes(videos))
}

func TestCountSnapshotTypes(t *testing.T) {
	snap := &ChannelSnapshot{Videos: map[string]SnapshotVideo{
		"a": {Type: VideoTypeShort},
		"b": {Type: VideoTypeLiveArchive},
		"c": {Type: VideoTypeMovie},
		"d": {Type: "Unknown"},
	}}
	assert.Equal(t, TypeCounts{Movie: 2, Short: 1, LiveArchive: 1}, CountSnapshotTypes(snap))
	assert.Equal(t, TypeCounts{}, CountSnapshotTypes(nil))
}
