package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/tramcast/tramcast/internal/agent"
	"github.com/tramcast/tramcast/pkg/app"
	"github.com/tramcast/tramcast/pkg/log"
	"github.com/tramcast/tramcast/pkg/options"
)

type AgentOptions struct {
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	NetworkOptions  *options.NetworkOptions  `json:"network" mapstructure:"network"`
	TimeSyncOptions *options.TimeSyncOptions `json:"timesync" mapstructure:"timesync"`
	OTAOptions      *options.OTAOptions      `json:"ota" mapstructure:"ota"`
	S3Options       *options.S3Options       `json:"s3" mapstructure:"s3"`
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	DisplayOptions  *options.DisplayOptions  `json:"display" mapstructure:"display"`
	Log             *log.Options             `json:"log" mapstructure:"log"`

	// Simulate runs against a scripted network, clock and broker.
	Simulate bool `json:"simulate" mapstructure:"simulate"`
}

var (
	_ app.NamedFlagSetOptions = (*AgentOptions)(nil)
	_ app.LogConfigurable     = (*AgentOptions)(nil)
)

func NewAgentOptions() *AgentOptions {
	o := &AgentOptions{
		MqttOptions:     options.NewMqttOptions(),
		NetworkOptions:  options.NewNetworkOptions(),
		TimeSyncOptions: options.NewTimeSyncOptions(),
		OTAOptions:      options.NewOTAOptions(),
		S3Options:       options.NewS3Options(),
		HttpOptions:     options.NewHttpOptions(),
		DisplayOptions:  options.NewDisplayOptions(),
		Log:             log.NewOptions(),
	}

	return o
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.NetworkOptions.AddFlags(fss.FlagSet("network"))
	o.TimeSyncOptions.AddFlags(fss.FlagSet("time sync"))
	o.OTAOptions.AddFlags(fss.FlagSet("ota"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.DisplayOptions.AddFlags(fss.FlagSet("display"))
	o.Log.AddFlags(fss.FlagSet("Log"))

	fss.FlagSet("misc").BoolVar(&o.Simulate, "simulate", o.Simulate,
		"Run against a simulated network, time source and broker instead of the host services.")
	return fss
}

func (o *AgentOptions) Complete() error {
	// The simulated collaborators replace the network and time sync backends.
	if o.Simulate {
		o.NetworkOptions.Backend = "none"
		o.TimeSyncOptions.Backend = "none"
	}
	return nil
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.NetworkOptions.Validate()...)
	errs = append(errs, o.TimeSyncOptions.Validate()...)
	errs = append(errs, o.OTAOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.DisplayOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)

	if o.OTAOptions.Storage == "s3" && o.S3Options.Endpoint == "" {
		errs = append(errs, fmt.Errorf("--s3.endpoint must be specified for the s3 storage"))
	}
	return utilerrors.NewAggregate(errs)
}

func (o *AgentOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *AgentOptions) Config() (*agent.Config, error) {
	return &agent.Config{
		MqttOptions:     o.MqttOptions,
		NetworkOptions:  o.NetworkOptions,
		TimeSyncOptions: o.TimeSyncOptions,
		OTAOptions:      o.OTAOptions,
		S3Options:       o.S3Options,
		HttpOptions:     o.HttpOptions,
		DisplayOptions:  o.DisplayOptions,
		Simulate:        o.Simulate,
	}, nil
}
