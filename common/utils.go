package common

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DayLayout is the calendar day key used in history records
	DayLayout = "2006-01-02"

	fetchTimeout = 30 * time.Second
)

// GenerateRunID returns a unique identifier attached to every log line of a run
func GenerateRunID() string {
	return uuid.New().String()
}

// RunZone is the fixed zone that decides which calendar day a run belongs to
func RunZone(offsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}

// RunDate returns the day key (YYYY-MM-DD) and year of now in the run zone.
// Both are derived from the same instant so a run never straddles two files.
func RunDate(now time.Time, offsetHours int) (day, year string) {
	local := now.In(RunZone(offsetHours))
	return local.Format(DayLayout), local.Format("2006")
}

// ReadSource returns the content of a local file or an http(s) URL
func ReadSource(location string) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		log.Debug().Str("path", location).Msg("Reading source file")
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return data, nil
	}

	log.Info().Str("url", location).Msg("Downloading source file")

	client := &http.Client{
		Timeout: fetchTimeout,
	}

	req, err := http.NewRequest(http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ytstats/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Info().Str("url", location).Int("bytes", len(data)).Msg("Source file downloaded successfully")
	return data, nil
}
