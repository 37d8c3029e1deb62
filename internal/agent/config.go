package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"k8s.io/utils/clock"

	"github.com/tramcast/tramcast/internal/agent/bus"
	"github.com/tramcast/tramcast/internal/agent/connectivity"
	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/internal/agent/hal"
	"github.com/tramcast/tramcast/internal/agent/ota"
	"github.com/tramcast/tramcast/internal/agent/router"
	"github.com/tramcast/tramcast/internal/agent/session"
	"github.com/tramcast/tramcast/internal/agent/timesync"
	"github.com/tramcast/tramcast/internal/display"
	"github.com/tramcast/tramcast/internal/pkg/metrics"
	"github.com/tramcast/tramcast/pkg/log"
	"github.com/tramcast/tramcast/pkg/mqtt"
	"github.com/tramcast/tramcast/pkg/mqtt/topic"
	"github.com/tramcast/tramcast/pkg/options"
)

// simulatedStatusInterval is how often the simulated broker publishes departures.
const simulatedStatusInterval = 15 * time.Second

type Config struct {
	MqttOptions     *options.MqttOptions
	NetworkOptions  *options.NetworkOptions
	TimeSyncOptions *options.TimeSyncOptions
	OTAOptions      *options.OTAOptions
	S3Options       *options.S3Options
	HttpOptions     *options.HttpOptions
	DisplayOptions  *options.DisplayOptions

	// Simulate replaces the network, the time source and the broker with
	// scripted stand-ins.
	Simulate bool
}

// collaborators are the host bindings an Agent runs on.
type collaborators struct {
	network    core.Network
	timeSource core.TimeSource
	broker     core.Broker
	storage    core.FirmwareStorage
}

// NewAgent binds the configured collaborators and assembles the agent.
func (cfg *Config) NewAgent() (*Agent, error) {
	topics, err := topic.NewTable(cfg.MqttOptions.TopicRoot)
	if err != nil {
		return nil, err
	}

	c, err := cfg.collaborators(topics)
	if err != nil {
		return nil, err
	}
	return cfg.build(topics, c, os.Stdout, clock.RealClock{})
}

func (cfg *Config) collaborators(topics *topic.Table) (collaborators, error) {
	var c collaborators

	switch {
	case cfg.Simulate:
		log.Info("Running with simulated network, time source and broker")
		c.network = &hal.SimNetwork{Delay: time.Second}
		c.timeSource = &hal.SimTimeSource{PendingPolls: 1}
		c.broker = hal.NewSimBroker(topics, simulatedStatusInterval, nil)
	default:
		network, err := cfg.network()
		if err != nil {
			return c, err
		}
		timeSource, err := cfg.timeSource()
		if err != nil {
			return c, err
		}
		c.network = network
		c.timeSource = timeSource
		c.broker = &mqttBroker{base: cfg.MqttOptions.ToClientConfig()}
	}

	storage, err := cfg.storage()
	if err != nil {
		return c, err
	}
	c.storage = storage

	return c, nil
}

func (cfg *Config) network() (core.Network, error) {
	if cfg.NetworkOptions.Backend == "none" {
		return hal.StaticNetwork{}, nil
	}
	nm, err := hal.NewNetworkManager(cfg.NetworkOptions.Interface)
	if err != nil {
		return nil, fmt.Errorf("failed to init network backend: %w", err)
	}
	return nm, nil
}

func (cfg *Config) timeSource() (core.TimeSource, error) {
	if cfg.TimeSyncOptions.Backend == "none" {
		return hal.SystemClock{}, nil
	}
	td, err := hal.NewTimedated()
	if err != nil {
		return nil, fmt.Errorf("failed to init time sync backend: %w", err)
	}
	return td, nil
}

func (cfg *Config) storage() (*hal.Slots, error) {
	restarter, err := hal.NewRestarter(cfg.OTAOptions.Restart)
	if err != nil {
		return nil, err
	}

	var backend hal.SlotBackend
	switch cfg.OTAOptions.Storage {
	case "s3":
		s3, err := hal.NewS3Slots(cfg.S3Options)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s3.CheckBucket(ctx); err != nil {
			return nil, err
		}
		backend = s3
	default:
		backend = hal.NewFileSlots(cfg.OTAOptions.SlotDir)
	}

	slots, err := hal.OpenSlots(cfg.OTAOptions.SlotDir, backend, restarter)
	if err != nil {
		return nil, fmt.Errorf("failed to open firmware slots: %w", err)
	}
	log.Info("Firmware slots opened", "active", slots.Active(), "pendingVerify", slots.PendingVerify())
	return slots, nil
}

// build wires the pipeline on top of c.
func (cfg *Config) build(topics *topic.Table, c collaborators, out io.Writer, clk clock.Clock) (*Agent, error) {
	var (
		status *Status
		disp   *display.Display
	)
	if cfg.DisplayOptions.Enabled {
		loc, err := time.LoadLocation(cfg.DisplayOptions.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid display timezone: %w", err)
		}
		b := bus.New(cfg.DisplayOptions.BusCapacity)
		status = NewStatus(b)
		disp = display.New(b, out, display.Config{
			Location:      loc,
			PollInterval:  cfg.DisplayOptions.PollInterval,
			CycleInterval: cfg.DisplayOptions.CycleInterval,
		}, clk)
	} else {
		status = NewStatus(nil)
	}

	machine := ota.NewMachine(c.storage)
	r, err := router.New(topics, status, machine, ota.NewBootControl(c.storage))
	if err != nil {
		return nil, err
	}

	sessionCfg := session.Config{
		Endpoint: cfg.MqttOptions.Broker,
		ClientID: cfg.MqttOptions.ClientID,
		Topics:   topics.Subscriptions(),
		QoS:      mqtt.QoS(cfg.MqttOptions.QoS),
	}
	if cfg.MqttOptions.Readiness {
		sessionCfg.ReadinessTopic = topics.OTAResult
		sessionCfg.ReadinessPayload = []byte(topic.ConfirmToken)
	}

	a := &Agent{
		conn: connectivity.NewManager(c.network, connectivity.Credentials{
			SSID:     cfg.NetworkOptions.SSID,
			Password: cfg.NetworkOptions.Password,
		}, status),
		gate:    timesync.NewGate(c.timeSource, status, cfg.TimeSyncOptions.PollInterval, clk),
		broker:  c.broker,
		session: sessionCfg,
		router:  r,
		ota:     machine,
		status:  status,
		display: disp,
		backoff: DefaultBackoff,
		clock:   clk,
	}

	if cfg.HttpOptions.Addr != "" {
		a.server = metrics.NewServer(cfg.HttpOptions.Addr, cfg.HttpOptions.Timeout, status.Ready)
	}

	return a, nil
}
