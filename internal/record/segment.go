// Package record turns a live broadcast into bounded output files.
package record

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"livewatch/internal/media"
	"livewatch/internal/source"
)

// AssumedBitrateMbps converts a size budget into a time budget.
const AssumedBitrateMbps = 5

// TimestampLayout stamps every recording session.
const TimestampLayout = "20060102_150405"

// ErrNoSegments is returned for the policy that writes a single file.
var ErrNoSegments = errors.New("split policy does not segment")

// SegmentSeconds returns the segment length for the split policy in s.
func SegmentSeconds(s source.Settings) (int, error) {
	switch s.SplitPolicy {
	case source.SplitTime:
		if s.SplitTimeMinutes < 1 {
			return 0, fmt.Errorf("%w: split_time_minutes must be >= 1", source.ErrInvalidSettings)
		}
		return s.SplitTimeMinutes * 60, nil
	case source.SplitSize:
		if s.SplitSizeMB < 1 {
			return 0, fmt.Errorf("%w: split_size_mb must be >= 1", source.ErrInvalidSettings)
		}
		return s.SplitSizeMB * 8 / AssumedBitrateMbps, nil
	case source.SplitNone:
		return 0, ErrNoSegments
	default:
		return 0, fmt.Errorf("%w: unknown split policy %d", source.ErrInvalidSettings, s.SplitPolicy)
	}
}

// OutputPattern returns the segment file pattern for a session started at t.
func OutputPattern(dir, prefix string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_part%%03d.mp4", prefix, t.Format(TimestampLayout)))
}

// SingleOutput returns the file name used when the session is not split.
func SingleOutput(dir, prefix string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.mp4", prefix, t.Format(TimestampLayout)))
}

// MuxArgs builds the segmenting muxer invocation. With two locators the
// first supplies video and the second audio; exactly one stream of each
// is mapped.
func MuxArgs(locators []media.Locator, segmentSeconds int, pattern string) ([]string, error) {
	if segmentSeconds < 1 {
		return nil, fmt.Errorf("segment length must be positive, got %d", segmentSeconds)
	}

	var args []string
	var audioMap string
	switch len(locators) {
	case 1:
		args = []string{"-i", locators[0].URL}
		audioMap = "0:a:0"
	case 2:
		args = []string{"-i", locators[0].URL, "-i", locators[1].URL}
		audioMap = "1:a:0"
	default:
		return nil, fmt.Errorf("expected 1 or 2 media locators, got %d", len(locators))
	}

	args = append(args,
		"-c", "copy", // no re-encoding
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-reset_timestamps", "1",
		"-map", "0:v:0",
		"-map", audioMap,
		pattern,
	)
	return args, nil
}
