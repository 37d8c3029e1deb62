package options

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TimeSyncOptions)(nil)

// TimeSyncOptions configures the clock synchronization gate.
type TimeSyncOptions struct {
	// Backend is "timedated" (systemd-timedated over D-Bus) or "none" to treat the clock as synchronized.
	Backend      string        `json:"backend" mapstructure:"backend"`
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`
}

func NewTimeSyncOptions() *TimeSyncOptions {
	return &TimeSyncOptions{
		Backend:      "timedated",
		PollInterval: 5 * time.Second,
	}
}

func (o *TimeSyncOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if !slices.Contains([]string{"timedated", "none"}, o.Backend) {
		errors = append(errors, fmt.Errorf("--timesync.backend must be timedated or none, got %q", o.Backend))
	}
	if o.PollInterval <= 0 {
		errors = append(errors, fmt.Errorf("--timesync.poll-interval must be positive"))
	}

	return errors
}

func (o *TimeSyncOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, "timesync.backend", o.Backend, "Time synchronization backend: timedated or none.")
	fs.DurationVar(&o.PollInterval, "timesync.poll-interval", o.PollInterval, "Interval between time synchronization status polls.")
}
