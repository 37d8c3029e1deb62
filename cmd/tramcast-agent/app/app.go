package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/tramcast/tramcast/cmd/tramcast-agent/app/options"
	"github.com/tramcast/tramcast/pkg/app"
)

const (
	commandName = "tramcast-agent"
	commandDesc = `The Tramcast agent runs on a departure display. It joins the wireless
network, waits for the system clock to synchronize, subscribes to the
departure topics on the MQTT broker and renders the next tram and metro
departures. Firmware images published to the broker are written to the
spare slot and booted.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch a Tramcast departure display agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.AgentOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
