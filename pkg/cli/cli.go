// Package cli provides the command-line interface for wisp
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/poltergeist/wisp/internal/engine"
	"github.com/poltergeist/wisp/pkg/builders"
	"github.com/poltergeist/wisp/pkg/config"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
)

// EnvPrefix prefixes environment overrides for the global flags, for
// example WISP_ROOT or WISP_VERBOSITY
const EnvPrefix = "WISP"

// CLI encapsulates the command tree and its output
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	logger   logger.Logger
	output   io.Writer
	errorOut io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	c := &CLI{
		config:   cfg,
		viper:    viper.New(),
		output:   os.Stdout,
		errorOut: os.Stderr,
	}

	c.setupCommands()
	return c
}

// NewCLIWithOutput creates a CLI with custom output writers (for testing)
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	c := NewCLI(cfg)
	c.output = output
	c.errorOut = errorOut
	c.rootCmd.SetOut(output)
	c.rootCmd.SetErr(errorOut)
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.Execute()
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "wisp",
		Short: "Front-end asset pipeline with live reload",
		Long: `✨ wisp - compiles templates, styles, scripts and assets into dist/

Without a subcommand wisp runs the development server and rebuilds whatever
changes. NODE_ENV=production selects minified, fingerprinted output.`,

		PersistentPreRunE: c.initializeConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDev(cmd)
		},
	}

	c.setupFlags()

	c.rootCmd.AddCommand(c.newDevCmd())
	c.rootCmd.AddCommand(c.newBuildCmd())
	c.rootCmd.AddCommand(c.newRunCmd())
	c.rootCmd.AddCommand(c.newTasksCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", "", "config file (default: wisp.yaml, wisp.yml or wisp.json in the root)")
	flags.StringVar(&c.config.ProjectRoot, "root", ".", "project root directory")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")
	c.rootCmd.Flags().IntVar(&c.config.Port, "port", 0, "dev server port (default from config, 9001)")

	_ = c.viper.BindPFlags(flags)
	_ = c.viper.BindPFlag("port", c.rootCmd.Flags().Lookup("port"))
}

// initializeConfig applies WISP_* and NODE_ENV on top of unset flags
func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	c.viper.SetEnvPrefix(EnvPrefix)
	c.viper.AutomaticEnv()
	if err := c.viper.BindEnv("env", config.EnvVar); err != nil {
		return err
	}

	c.config.ConfigFile = c.viper.GetString("config")
	c.config.ProjectRoot = c.viper.GetString("root")
	c.config.Verbosity = c.viper.GetString("verbosity")
	c.config.Env = c.viper.GetString("env")
	if !cmd.Flags().Changed("port") {
		if port := c.viper.GetInt("port"); port != 0 {
			c.config.Port = port
		}
	}

	if c.output == os.Stdout {
		c.logger = logger.CreateLogger("", c.config.Verbosity)
	} else {
		c.logger = logger.CreateLoggerWithOutput("", c.config.Verbosity, c.output)
	}

	return nil
}

// resolve builds the frozen configuration for this invocation
func (c *CLI) resolve() (types.Config, error) {
	cfg, err := config.Resolve(config.Options{
		Root:       c.config.ProjectRoot,
		ConfigPath: c.config.ConfigFile,
		Env:        c.config.Env,
		Port:       c.config.Port,
	})
	if err != nil {
		return types.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	c.logger.Debug("Resolved configuration",
		logger.WithField("root", cfg.ProjectRoot),
		logger.WithField("mode", cfg.Mode))
	return cfg, nil
}

// newWisp wires the default pipelines for cfg. reloader may be nil outside
// development mode.
func (c *CLI) newWisp(cfg types.Config, reloader builders.Reloader, overrides engine.Dependencies) (*engine.Wisp, error) {
	deps := engine.NewDependencyFactory(cfg, c.logger).CreateWithOverrides(reloader, overrides)
	return engine.New(cfg, c.logger, deps)
}
