package youtube

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/researchaccelerator-hub/ytstats/client"
	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

// MockDataAPI is a testify mock of DataAPI
type MockDataAPI struct {
	mock.Mock
}

func (m *MockDataAPI) ResolveChannelID(ctx context.Context, source string) (string, error) {
	args := m.Called(ctx, source)
	return args.String(0), args.Error(1)
}

func (m *MockDataAPI) GetChannelStats(ctx context.Context, channelID string) (*youtube.ChannelStats, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.ChannelStats), args.Error(1)
}

func (m *MockDataAPI) GetUploadedVideos(ctx context.Context, playlistID string) ([]youtube.VideoRecord, error) {
	args := m.Called(ctx, playlistID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]youtube.VideoRecord), args.Error(1)
}

// MockShortDetector is a testify mock of ShortDetector
type MockShortDetector struct {
	mock.Mock
}

func (m *MockShortDetector) DetectBatch(ctx context.Context, ids []string) map[string]bool {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[string]bool)
}

var fixedNow = time.Date(2024, 3, 5, 9, 30, 0, 0, time.FixedZone("JST", 9*3600))

func newTestIngestor(api *MockDataAPI, detector *MockShortDetector) *Ingestor {
	ing := NewIngestor(api, detector)
	ing.SetClock(func() time.Time { return fixedNow })
	return ing
}

func channelStats() *youtube.ChannelStats {
	return &youtube.ChannelStats{
		Title:             "Talent A Ch.",
		SubscriberCount:   1000,
		ViewCount:         50000,
		VideoCount:        3,
		UploadsPlaylistID: "UUabc",
	}
}

func uploads() []youtube.VideoRecord {
	return []youtube.VideoRecord{
		{ID: "v1", Title: "Long stream", LiveBroadcastContent: "completed", Duration: "PT2H", ViewCount: 900},
		{ID: "v2", Title: "Short clip", Duration: "PT40S", ViewCount: 300},
		{ID: "v3", Title: "Music video", Duration: "PT4M", ViewCount: 100},
	}
}

func TestIngest_ResolvesAndClassifiesNewChannel(t *testing.T) {
	api := new(MockDataAPI)
	detector := new(MockShortDetector)
	cfg := youtube.ChannelConfig{Name: "Talent A", URL: "https://www.youtube.com/@talent_a"}

	api.On("ResolveChannelID", mock.Anything, cfg.URL).Return("UCabc", nil)
	api.On("GetChannelStats", mock.Anything, "UCabc").Return(channelStats(), nil)
	api.On("GetUploadedVideos", mock.Anything, "UUabc").Return(uploads(), nil)
	detector.On("DetectBatch", mock.Anything, []string{"v1", "v2", "v3"}).Return(map[string]bool{"v1": false, "v2": true, "v3": false})

	result, err := newTestIngestor(api, detector).Ingest(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "UCabc", result.ChannelID)
	assert.Equal(t, "2024-03-05 09:30:00", result.Stats.CapturedAt)
	assert.Equal(t, 3, result.NewVideos)
	require.Len(t, result.Videos, 3)

	assert.Equal(t, youtube.VideoTypeLiveArchive, result.Videos[0].Type)
	assert.Equal(t, youtube.VideoTypeShort, result.Videos[1].Type)
	assert.Equal(t, youtube.VideoTypeMovie, result.Videos[2].Type)
	for _, v := range result.Videos {
		assert.Equal(t, youtube.SourceDetected, v.Source)
	}

	api.AssertExpectations(t)
	detector.AssertExpectations(t)
}

func TestIngest_CachedVideosAreNotProbed(t *testing.T) {
	api := new(MockDataAPI)
	detector := new(MockShortDetector)
	cfg := youtube.ChannelConfig{Name: "Talent A", URL: "https://www.youtube.com/@talent_a"}

	existing := &youtube.ChannelSnapshot{
		ChannelID: "UCabc",
		Videos: map[string]youtube.SnapshotVideo{
			// cached types win even where fresh rules would disagree
			"v1": {Title: "Long stream", Type: youtube.VideoTypeMovie},
			"v2": {Title: "Short clip", Type: youtube.VideoTypeShort},
		},
	}

	api.On("GetChannelStats", mock.Anything, "UCabc").Return(channelStats(), nil)
	api.On("GetUploadedVideos", mock.Anything, "UUabc").Return(uploads(), nil)
	detector.On("DetectBatch", mock.Anything, []string{"v3"}).Return(map[string]bool{"v3": false})

	result, err := newTestIngestor(api, detector).Ingest(context.Background(), cfg, nil, existing)
	require.NoError(t, err)

	assert.Equal(t, 1, result.NewVideos)
	assert.Equal(t, youtube.VideoTypeMovie, result.Videos[0].Type)
	assert.Equal(t, youtube.SourceCache, result.Videos[0].Source)
	assert.Equal(t, youtube.VideoTypeShort, result.Videos[1].Type)
	assert.Equal(t, youtube.SourceCache, result.Videos[1].Source)
	assert.Equal(t, youtube.SourceDetected, result.Videos[2].Source)

	api.AssertNotCalled(t, "ResolveChannelID", mock.Anything, mock.Anything)
	detector.AssertNumberOfCalls(t, "DetectBatch", 1)
}

func TestIngest_FullyCachedChannelSkipsDetection(t *testing.T) {
	api := new(MockDataAPI)
	detector := new(MockShortDetector)
	cfg := youtube.ChannelConfig{Name: "Talent A", URL: "https://www.youtube.com/@talent_a"}

	existing := &youtube.ChannelSnapshot{
		ChannelID: "UCabc",
		Videos: map[string]youtube.SnapshotVideo{
			"v1": {Type: youtube.VideoTypeLiveArchive},
			"v2": {Type: youtube.VideoTypeShort},
			"v3": {Type: ""},
		},
	}

	api.On("GetChannelStats", mock.Anything, "UCabc").Return(channelStats(), nil)
	api.On("GetUploadedVideos", mock.Anything, "UUabc").Return(uploads(), nil)

	result, err := newTestIngestor(api, detector).Ingest(context.Background(), cfg, nil, existing)
	require.NoError(t, err)

	assert.Equal(t, 0, result.NewVideos)
	assert.Equal(t, youtube.VideoTypeMovie, result.Videos[2].Type)
	detector.AssertNotCalled(t, "DetectBatch", mock.Anything, mock.Anything)
}

func TestIngest_OverrideBeatsCache(t *testing.T) {
	api := new(MockDataAPI)
	detector := new(MockShortDetector)
	cfg := youtube.ChannelConfig{Name: "Talent A", URL: "https://www.youtube.com/@talent_a"}

	existing := &youtube.ChannelSnapshot{
		ChannelID: "UCabc",
		Videos: map[string]youtube.SnapshotVideo{
			"v1": {Type: youtube.VideoTypeMovie},
			"v2": {Type: youtube.VideoTypeShort},
		},
	}
	overrides := youtube.OverrideTable{"Talent A": {"v2": youtube.VideoTypeLiveArchive, "v3": youtube.VideoTypeShort}}

	api.On("GetChannelStats", mock.Anything, "UCabc").Return(channelStats(), nil)
	api.On("GetUploadedVideos", mock.Anything, "UUabc").Return(uploads(), nil)
	detector.On("DetectBatch", mock.Anything, []string{"v3"}).Return(map[string]bool{"v3": false})

	result, err := newTestIngestor(api, detector).Ingest(context.Background(), cfg, overrides, existing)
	require.NoError(t, err)

	assert.Equal(t, youtube.VideoTypeMovie, result.Videos[0].Type)
	assert.Equal(t, youtube.VideoTypeLiveArchive, result.Videos[1].Type)
	assert.Equal(t, youtube.SourceOverride, result.Videos[1].Source)
	assert.Equal(t, youtube.VideoTypeShort, result.Videos[2].Type)
	assert.Equal(t, youtube.SourceOverride, result.Videos[2].Source)
}

func TestIngest_Failures(t *testing.T) {
	cfg := youtube.ChannelConfig{Name: "Talent B", URL: "https://www.youtube.com/@talent_b"}
	apiErr := errors.New("quota exceeded")

	tests := []struct {
		name      string
		setup     func(api *MockDataAPI)
		wantStage Stage
		wantErr   error
	}{
		{
			name: "channel not found",
			setup: func(api *MockDataAPI) {
				api.On("ResolveChannelID", mock.Anything, cfg.URL).Return("", client.ErrChannelNotFound)
			},
			wantStage: StageResolve,
			wantErr:   client.ErrChannelNotFound,
		},
		{
			name: "stats failure",
			setup: func(api *MockDataAPI) {
				api.On("ResolveChannelID", mock.Anything, cfg.URL).Return("UCb", nil)
				api.On("GetChannelStats", mock.Anything, "UCb").Return(nil, apiErr)
			},
			wantStage: StageStats,
			wantErr:   apiErr,
		},
		{
			name: "listing failure",
			setup: func(api *MockDataAPI) {
				api.On("ResolveChannelID", mock.Anything, cfg.URL).Return("UCb", nil)
				api.On("GetChannelStats", mock.Anything, "UCb").Return(channelStats(), nil)
				api.On("GetUploadedVideos", mock.Anything, "UUabc").Return(nil, apiErr)
			},
			wantStage: StageList,
			wantErr:   apiErr,
		},
		{
			name: "empty upload list",
			setup: func(api *MockDataAPI) {
				api.On("ResolveChannelID", mock.Anything, cfg.URL).Return("UCb", nil)
				api.On("GetChannelStats", mock.Anything, "UCb").Return(channelStats(), nil)
				api.On("GetUploadedVideos", mock.Anything, "UUabc").Return([]youtube.VideoRecord{}, nil)
			},
			wantStage: StageList,
			wantErr:   ErrNoVideos,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockDataAPI)
			detector := new(MockShortDetector)
			tt.setup(api)

			result, err := newTestIngestor(api, detector).Ingest(context.Background(), cfg, nil, nil)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)

			var ingestErr *IngestError
			require.ErrorAs(t, err, &ingestErr)
			assert.Equal(t, "Talent B", ingestErr.Channel)
			assert.Equal(t, tt.wantStage, ingestErr.Stage)

			detector.AssertNotCalled(t, "DetectBatch", mock.Anything, mock.Anything)
		})
	}
}

func TestIngest_CancelledDuringListingFailsChannel(t *testing.T) {
	api := new(MockDataAPI)
	detector := new(MockShortDetector)
	cfg := youtube.ChannelConfig{Name: "Talent A", URL: "https://www.youtube.com/@talent_a"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api.On("ResolveChannelID", mock.Anything, cfg.URL).Return("UCabc", nil)
	api.On("GetChannelStats", mock.Anything, "UCabc").Return(channelStats(), nil)
	api.On("GetUploadedVideos", mock.Anything, "UUabc").
		Run(func(mock.Arguments) { cancel() }).
		Return(uploads(), nil)
	// every probe fails on a cancelled context
	detector.On("DetectBatch", mock.Anything, []string{"v1", "v2", "v3"}).Return(map[string]bool{"v1": false, "v2": false, "v3": false})

	result, err := newTestIngestor(api, detector).Ingest(ctx, cfg, nil, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)

	var ingestErr *IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, StageDetect, ingestErr.Stage)
}

func TestIngest_CancelledFullyCachedChannelFails(t *testing.T) {
	api := new(MockDataAPI)
	detector := new(MockShortDetector)
	cfg := youtube.ChannelConfig{Name: "Talent A", URL: "https://www.youtube.com/@talent_a"}
	existing := &youtube.ChannelSnapshot{
		ChannelID: "UCabc",
		Videos: map[string]youtube.SnapshotVideo{
			"v1": {Type: youtube.VideoTypeLiveArchive},
			"v2": {Type: youtube.VideoTypeShort},
			"v3": {Type: youtube.VideoTypeMovie},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api.On("GetChannelStats", mock.Anything, "UCabc").Return(channelStats(), nil)
	api.On("GetUploadedVideos", mock.Anything, "UUabc").
		Run(func(mock.Arguments) { cancel() }).
		Return(uploads(), nil)

	_, err := newTestIngestor(api, detector).Ingest(ctx, cfg, nil, existing)
	assert.ErrorIs(t, err, context.Canceled)
	detector.AssertNotCalled(t, "DetectBatch", mock.Anything, mock.Anything)
}
