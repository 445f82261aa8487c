package store

import (
	"strings"
	"time"
)

const TimestampLayout = "20060102-150405"

const (
	filePrefix     = "image_"
	downloadPrefix = "ai_generated_"
	ext            = ".png"
)

// Names are the storage and download file names for one generation. They share the
// timestamp and never collide with each other.
type Names struct {
	Timestamp string
	File      string
	Download  string
}

func NamesAt(t time.Time) Names {
	return namesFor(t.Format(TimestampLayout))
}

// ParseFile recovers Names from a storage file name such as image_20240101-120000.png.
func ParseFile(name string) (Names, bool) {
	ts, ok := strings.CutPrefix(name, filePrefix)
	if !ok {
		return Names{}, false
	}
	ts, ok = strings.CutSuffix(ts, ext)
	if !ok {
		return Names{}, false
	}
	if _, err := time.Parse(TimestampLayout, ts); err != nil {
		return Names{}, false
	}
	return namesFor(ts), true
}

func namesFor(ts string) Names {
	return Names{
		Timestamp: ts,
		File:      filePrefix + ts + ext,
		Download:  downloadPrefix + ts + ext,
	}
}
