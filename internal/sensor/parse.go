package sensor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/motion.report/internal/motion"
)

// ErrNotSample is returned by ParseSample for lines that carry no
// acceleration reading.
var ErrNotSample = errors.New("not a sample line")

// LineKind is the coarse classification of one line read from the device.
type LineKind int

const (
	LineUnknown LineKind = iota
	LineSample
	LineStatus
)

func (k LineKind) String() string {
	switch k {
	case LineSample:
		return "sample"
	case LineStatus:
		return "status"
	default:
		return "unknown"
	}
}

// jsonSample requires every axis to be present.
type jsonSample struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// ParseSample reads one acceleration reading in g from either a CSV line
// ("x,y,z") or a JSON object ({"x":..,"y":..,"z":..}). Non-finite axis values
// are not samples.
func ParseSample(line string) (motion.Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return motion.Sample{}, ErrNotSample
	}

	if strings.HasPrefix(line, "{") {
		var js jsonSample
		if err := json.Unmarshal([]byte(line), &js); err != nil {
			return motion.Sample{}, fmt.Errorf("%w: %v", ErrNotSample, err)
		}
		if js.X == nil || js.Y == nil || js.Z == nil {
			return motion.Sample{}, fmt.Errorf("%w: missing axis in %q", ErrNotSample, line)
		}
		return finiteSample(motion.Sample{X: *js.X, Y: *js.Y, Z: *js.Z}, line)
	}

	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return motion.Sample{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrNotSample, len(fields))
	}
	var axes [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return motion.Sample{}, fmt.Errorf("%w: axis %d: %v", ErrNotSample, i, err)
		}
		axes[i] = v
	}
	return finiteSample(motion.Sample{X: axes[0], Y: axes[1], Z: axes[2]}, line)
}

// finiteSample rejects readings strconv accepts but the filter cannot recover
// from, such as "NaN" or "+Inf".
func finiteSample(s motion.Sample, line string) (motion.Sample, error) {
	if !s.IsFinite() {
		return motion.Sample{}, fmt.Errorf("%w: non-finite axis in %q", ErrNotSample, line)
	}
	return s, nil
}

// ClassifyLine decides whether line is a sample or a status/config line.
// Blank lines are LineUnknown.
func ClassifyLine(line string) (LineKind, motion.Sample) {
	if strings.TrimSpace(line) == "" {
		return LineUnknown, motion.Sample{}
	}
	s, err := ParseSample(line)
	if err != nil {
		return LineStatus, motion.Sample{}
	}
	return LineSample, s
}

// ParseFixture reads a recorded stream: one sample per line, blank lines and
// lines starting with '#' ignored. A leading non-numeric header is skipped.
func ParseFixture(r io.Reader) ([]motion.Sample, error) {
	var samples []motion.Sample
	scan := bufio.NewScanner(r)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, err := ParseSample(line)
		if err != nil {
			if len(samples) == 0 && strings.EqualFold(strings.ReplaceAll(line, " ", ""), "x,y,z") {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		samples = append(samples, s)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return samples, nil
}

// LoadFixture reads a fixture file from disk.
func LoadFixture(path string) ([]motion.Sample, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	return ParseFixture(f)
}
