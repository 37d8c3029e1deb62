// Package app builds cobra commands whose options come from named flag
// sets, an optional YAML config file and TRAMCAST_ environment variables.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"

	"github.com/tramcast/tramcast/pkg/log"
)

const (
	configFlagName      = "config"
	printConfigFlagName = "print-config"
	envPrefix           = "TRAMCAST"
)

// RunFunc is the application's entry point, called once options are complete and valid.
type RunFunc func() error

// NamedFlagSetOptions is implemented by the option set of a command.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section for help output.
	Flags() cliflag.NamedFlagSets

	// Complete fills in derived fields after flags and config are applied.
	Complete() error

	// Validate checks the options and returns an aggregate of all problems.
	Validate() error
}

// LogConfigurable is implemented by options that carry log options. The App
// initializes the global logger from them before calling RunFunc.
type LogConfigurable interface {
	LogOptions() *log.Options
}

// App is a command line application.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	args        cobra.PositionalArgs

	v   *viper.Viper
	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithOptions sets the option set that is populated from flags and config.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the function executed by the command.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDescription sets the long description shown in help output.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithDefaultValidArgs rejects any positional argument.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// NewApp creates an App named name.
func NewApp(name, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		v:         viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits the process with a non-zero status on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
		RunE:          a.runCommand,
	}

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}

	global := fss.FlagSet("global")
	global.StringP(configFlagName, "c", "", fmt.Sprintf("Path to the %s configuration file (YAML).", a.name))
	global.Bool(printConfigFlagName, false, "Print the effective configuration and exit.")
	globalflag.AddGlobalFlags(global, cmd.Name())

	fs := cmd.Flags()
	for _, f := range fss.FlagSets {
		fs.AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfgFile, _ := cmd.Flags().GetString(configFlagName)
	usedFile, err := a.loadConfig(cfgFile)
	if err != nil {
		return err
	}

	if printConfig, _ := cmd.Flags().GetBool(printConfigFlagName); printConfig {
		return a.printConfig(cmd)
	}

	if a.options != nil {
		if err := a.v.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to decode configuration: %w", err)
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
		if lc, ok := a.options.(LogConfigurable); ok {
			log.Init(lc.LogOptions())
			defer func() { _ = log.Sync() }()
		}
	}

	if usedFile != "" {
		log.Info("Using config file", "file", usedFile)
		a.watchConfig()
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// loadConfig reads the config file, if any, and enables environment
// overrides. It returns the path of the file that was read.
func (a *App) loadConfig(cfgFile string) (string, error) {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		a.v.SetConfigName(a.name)
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		a.v.AddConfigPath(filepath.Join("/etc", a.name))
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read configuration file: %w", err)
	}
	return a.v.ConfigFileUsed(), nil
}

// watchConfig applies log level changes from the config file without a restart.
// Every other setting needs a restart.
func (a *App) watchConfig() {
	a.v.OnConfigChange(func(e fsnotify.Event) {
		level := a.v.GetString("log.level")
		if err := log.SetLevel(level); err != nil {
			log.Error(err, "Ignoring config change", "file", e.Name)
			return
		}
		log.Info("Config file changed", "file", e.Name, "op", e.Op.String(), "log.level", level)
	})
	a.v.WatchConfig()
}

func (a *App) printConfig(cmd *cobra.Command) error {
	out, err := yaml.Marshal(redact(a.v.AllSettings()))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

// redact hides credentials in a settings tree.
func redact(settings map[string]any) map[string]any {
	for k, v := range settings {
		switch val := v.(type) {
		case map[string]any:
			settings[k] = redact(val)
		case string:
			if val != "" && (strings.Contains(k, "password") || strings.Contains(k, "secret")) {
				settings[k] = "******"
			}
		}
	}
	return settings
}
