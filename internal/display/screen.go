package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Screen is one page of the display.
type Screen int

const (
	DataNotAvailable Screen = iota
	Tram
	Metro
	Weather
)

func (s Screen) String() string {
	switch s {
	case Tram:
		return "Tram"
	case Metro:
		return "Metro"
	case Weather:
		return "Weather"
	default:
		return "DataNotAvailable"
	}
}

// next returns the screen shown after s when data is available.
func (s Screen) next() Screen {
	switch s {
	case Tram:
		return Metro
	case Metro:
		return Weather
	default:
		return Tram
	}
}

// statusMessage explains why no data is shown. The first missing
// prerequisite wins.
func statusMessage(s *Snapshot) string {
	switch {
	case !s.Network:
		return "Connecting WiFi..."
	case !s.Session:
		return "Connecting MQTT..."
	case !s.TimeSynced:
		return "Syncing time..."
	default:
		return "Waiting for data..."
	}
}

// tramLine formats the countdown as mm:ss, rounded to whole seconds.
func tramLine(departAt *time.Time, now time.Time) string {
	if departAt == nil {
		return "N/A"
	}
	left := departAt.Round(time.Second).Sub(now.Truncate(time.Second))
	if left <= 0 {
		return "now"
	}
	secs := int64(left / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func metroLine(departAt *time.Time, now time.Time) string {
	if departAt == nil {
		return "N/A"
	}
	at := departAt.Round(time.Second)
	if !at.After(now) {
		return "now"
	}
	return strings.TrimSpace(humanize.RelTime(now, at, "", ""))
}
