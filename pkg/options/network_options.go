package options

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"
)

var _ IOptions = (*NetworkOptions)(nil)

// NetworkOptions configures the wireless association.
type NetworkOptions struct {
	// Backend is "networkmanager" (D-Bus) or "none" for hosts with a wired or externally managed link.
	Backend   string `json:"backend" mapstructure:"backend"`
	SSID      string `json:"ssid" mapstructure:"ssid"`
	Password  string `json:"password" mapstructure:"password"`
	Interface string `json:"interface" mapstructure:"interface"`
}

func NewNetworkOptions() *NetworkOptions {
	return &NetworkOptions{
		Backend:   "networkmanager",
		Interface: "wlan0",
	}
}

func (o *NetworkOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if !slices.Contains([]string{"networkmanager", "none"}, o.Backend) {
		errors = append(errors, fmt.Errorf("--network.backend must be networkmanager or none, got %q", o.Backend))
	}
	if o.Backend == "networkmanager" && o.SSID == "" {
		errors = append(errors, fmt.Errorf("--network.ssid must be specified for the networkmanager backend"))
	}

	return errors
}

func (o *NetworkOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, "network.backend", o.Backend, "Network association backend: networkmanager or none.")
	fs.StringVar(&o.SSID, "network.ssid", o.SSID, "SSID of the wireless network.")
	fs.StringVar(&o.Password, "network.password", o.Password, "WPA passphrase of the wireless network.")
	fs.StringVar(&o.Interface, "network.interface", o.Interface, "Wireless interface to associate.")
}
