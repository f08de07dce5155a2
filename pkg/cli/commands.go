package cli

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/poltergeist/wisp/internal/engine"
	"github.com/poltergeist/wisp/internal/watcher"
	"github.com/poltergeist/wisp/pkg/metrics"
	"github.com/poltergeist/wisp/pkg/process"
	"github.com/poltergeist/wisp/pkg/server"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
)

func (c *CLI) newDevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Build, serve and rebuild on change (default)",
		Long: `Start the development server on the configured port, build templates,
styles, assets and scripts once, then rebuild whatever changes until
interrupted. Compile errors are reported and never stop the watcher.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDev(cmd)
		},
	}

	cmd.Flags().IntVar(&c.config.Port, "port", 0, "dev server port (default from config, 9001)")
	return cmd
}

func (c *CLI) newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Clean the destination and run the full build once",
		Long: `Remove the destination directory, then compile every asset class, minify,
fingerprint CSS and JS and rewrite references in the built pages.

Set NODE_ENV=production for minified output without source maps.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBuild(cmd.Context())
		},
	}
}

func (c *CLI) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task>...",
		Short: "Run tasks together with their prerequisites",
		Long:  `Run one or more named tasks once. See "wisp tasks" for the list.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTasks(cmd.Context(), args)
		},
	}
}

func (c *CLI) newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List tasks and their prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runList()
		},
	}
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version := c.config.Version
			if version == "" {
				version = "dev"
			}
			fmt.Fprintf(c.output, "✨ wisp v%s\n", version)
		},
	}
}

func (c *CLI) runDev(cmd *cobra.Command) error {
	cfg, err := c.resolve()
	if err != nil {
		return err
	}

	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	hub := server.NewLiveReloadHub(c.logger, recorder)

	w, err := c.newWisp(cfg, hub, engine.Dependencies{Recorder: recorder})
	if err != nil {
		return err
	}

	changes, err := watcher.New(watcher.Config{
		Root:          cfg.ProjectRoot,
		Patterns:      watchPatterns(cfg),
		Exclusions:    outputExclusions(cfg),
		SettlingDelay: time.Duration(cfg.SettlingDelay) * time.Millisecond,
	}, c.logger)
	if err != nil {
		w.Close()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	srv := server.New(cfg, c.logger, hub, metrics.HTTPHandler(reg))

	pm := process.NewManager(c.logger)
	ctx := pm.Start(cmd.Context())
	defer pm.Stop()

	if cfg.Server.Open {
		go func() {
			// Give the listener a moment to bind
			time.Sleep(200 * time.Millisecond)
			if err := openBrowser("http://" + srv.Addr()); err != nil {
				c.logger.Debug(fmt.Sprintf("Could not open browser: %v", err))
			}
		}()
	}

	c.logger.Info(fmt.Sprintf("Starting wisp in %s mode", cfg.Mode))
	return w.Develop(ctx, srv, changes)
}

func (c *CLI) runBuild(ctx context.Context) error {
	cfg, err := c.resolve()
	if err != nil {
		return err
	}

	w, err := c.newWisp(cfg, nil, engine.Dependencies{})
	if err != nil {
		return err
	}
	defer w.Close()

	pm := process.NewManager(c.logger)
	ctx = pm.Start(ctx)
	defer pm.Stop()

	report, err := w.Build(ctx)
	if report != nil {
		c.printReport(report)
	}
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

func (c *CLI) runTasks(ctx context.Context, names []string) error {
	cfg, err := c.resolve()
	if err != nil {
		return err
	}

	w, err := c.newWisp(cfg, nil, engine.Dependencies{})
	if err != nil {
		return err
	}
	defer w.Close()

	pm := process.NewManager(c.logger)
	ctx = pm.Start(ctx)
	defer pm.Stop()

	report, err := w.RunTask(ctx, names...)
	if report != nil {
		c.printReport(report)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", strings.Join(names, ", "), err)
	}
	return nil
}

func (c *CLI) runList() error {
	cfg, err := c.resolve()
	if err != nil {
		return err
	}

	w, err := c.newWisp(cfg, nil, engine.Dependencies{})
	if err != nil {
		return err
	}
	defer w.Close()

	tw := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tREQUIRES\tDESCRIPTION")
	fmt.Fprintln(tw, "----\t--------\t-----------")
	for _, task := range w.Tasks() {
		requires := "-"
		if len(task.Dependencies) > 0 {
			requires = strings.Join(task.Dependencies, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", task.Name, requires, task.Description)
	}
	return tw.Flush()
}

func (c *CLI) printReport(report *engine.Report) {
	tw := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATUS\tDURATION")
	fmt.Fprintln(tw, "----\t------\t--------")
	for _, res := range report.Results() {
		duration := "-"
		if res.Status == types.TaskStatusCompleted || res.Status == types.TaskStatusFailed {
			duration = res.Duration().Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Name, res.Status, duration)
	}
	_ = tw.Flush()
}

// watchPatterns is the union of the watched classes' globs
func watchPatterns(cfg types.Config) []string {
	var patterns []string
	patterns = append(patterns, cfg.Templates.Watch...)
	patterns = append(patterns, cfg.Styles.Watch...)
	patterns = append(patterns, cfg.Scripts.Watch...)
	patterns = append(patterns, cfg.Assets.Watch...)
	return patterns
}

// outputExclusions anchors the output directories at the project root so
// writes to dist never feed back into the watcher
func outputExclusions(cfg types.Config) []string {
	var out []string
	for _, dir := range []string{cfg.Destination, cfg.Server.Root} {
		if dir == "" || filepath.IsAbs(dir) {
			continue
		}
		out = append(out, "/"+utils.NormalizePattern(filepath.ToSlash(dir)))
	}
	return out
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
