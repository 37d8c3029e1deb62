package options

import (
	"fmt"
	"time"
	// Devices often ship without a zoneinfo database.
	_ "time/tzdata"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DisplayOptions)(nil)

// DisplayOptions configures the console status display.
type DisplayOptions struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Timezone of the clock line, as an IANA location name.
	Timezone string `json:"timezone" mapstructure:"timezone"`

	// PollInterval is how often the display drains the event bus.
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`

	// CycleInterval is how long each screen stays up.
	CycleInterval time.Duration `json:"cycle-interval" mapstructure:"cycle-interval"`

	// BusCapacity bounds the number of undelivered state events.
	BusCapacity int `json:"bus-capacity" mapstructure:"bus-capacity"`
}

func NewDisplayOptions() *DisplayOptions {
	return &DisplayOptions{
		Enabled:       true,
		Timezone:      "Europe/Budapest",
		PollInterval:  100 * time.Millisecond,
		CycleInterval: 4 * time.Second,
		BusCapacity:   64,
	}
}

func (o *DisplayOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if _, err := time.LoadLocation(o.Timezone); err != nil {
		errors = append(errors, fmt.Errorf("--display.timezone: %w", err))
	}
	if o.PollInterval <= 0 {
		errors = append(errors, fmt.Errorf("--display.poll-interval must be positive"))
	}
	if o.CycleInterval <= 0 {
		errors = append(errors, fmt.Errorf("--display.cycle-interval must be positive"))
	}
	if o.BusCapacity <= 0 {
		errors = append(errors, fmt.Errorf("--display.bus-capacity must be positive, got %d", o.BusCapacity))
	}

	return errors
}

func (o *DisplayOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "display.enabled", o.Enabled, "Render the status display on standard output.")
	fs.StringVar(&o.Timezone, "display.timezone", o.Timezone, "Time zone of the displayed clock.")
	fs.DurationVar(&o.PollInterval, "display.poll-interval", o.PollInterval, "Interval between event bus polls.")
	fs.DurationVar(&o.CycleInterval, "display.cycle-interval", o.CycleInterval, "How long each screen is shown.")
	fs.IntVar(&o.BusCapacity, "display.bus-capacity", o.BusCapacity, "Maximum number of undelivered state events kept for the display.")
}
