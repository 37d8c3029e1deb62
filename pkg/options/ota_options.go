package options

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"
)

var _ IOptions = (*OTAOptions)(nil)

// OTAOptions configures where firmware images are written and how the device restarts.
type OTAOptions struct {
	// Storage is "file" (A/B slot files in SlotDir) or "s3" (slots in a bucket, see S3Options).
	Storage string `json:"storage" mapstructure:"storage"`

	// SlotDir holds the slot images and the boot state for the file storage,
	// and the boot state for the s3 storage.
	SlotDir string `json:"slot-dir" mapstructure:"slot-dir"`

	// Restart is "reboot" (reboot the host) or "exec" (re-execute the agent binary).
	Restart string `json:"restart" mapstructure:"restart"`
}

func NewOTAOptions() *OTAOptions {
	return &OTAOptions{
		Storage: "file",
		SlotDir: "/var/lib/tramcast/slots",
		Restart: "reboot",
	}
}

func (o *OTAOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if !slices.Contains([]string{"file", "s3"}, o.Storage) {
		errors = append(errors, fmt.Errorf("--ota.storage must be file or s3, got %q", o.Storage))
	}
	if o.SlotDir == "" {
		errors = append(errors, fmt.Errorf("--ota.slot-dir must be specified"))
	}
	if !slices.Contains([]string{"reboot", "exec"}, o.Restart) {
		errors = append(errors, fmt.Errorf("--ota.restart must be reboot or exec, got %q", o.Restart))
	}

	return errors
}

func (o *OTAOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Storage, "ota.storage", o.Storage, "Firmware slot storage: file or s3.")
	fs.StringVar(&o.SlotDir, "ota.slot-dir", o.SlotDir, "Directory holding the firmware slots and boot state.")
	fs.StringVar(&o.Restart, "ota.restart", o.Restart, "How to boot a new image: reboot the host or exec the agent.")
}
