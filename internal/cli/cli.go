// Package cli implements the chomp command surface (spec.md §6.2): a
// single cobra command tree built the way the teacher's newRootCmd
// composes persistent flags, with the same exitError sentinel centralizing
// os.Exit at Execute's boundary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chompbuild.dev/internal/chomplog"
	"chompbuild.dev/internal/config"
	"chompbuild.dev/internal/dirs"
	"chompbuild.dev/internal/extensions"
	"chompbuild.dev/internal/graph"
	"chompbuild.dev/internal/launcher"
	"chompbuild.dev/internal/pool"
	"chompbuild.dev/internal/scheduler"
	"chompbuild.dev/internal/scripting"
	"chompbuild.dev/internal/template"
)

var (
	globalConfig     string
	globalJobs       int
	globalForce      bool
	globalWatch      bool
	globalEject      bool
	globalFormat     string
	globalList       bool
	globalClearCache bool
)

// exitError is a sentinel error carrying a specific exit code. RunE
// functions return this instead of calling os.Exit directly, so Execute
// centralizes process termination.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute builds and runs the cobra command tree for version v.
func Execute(v string) {
	globalConfig = ""
	globalJobs = runtime.NumCPU()
	globalForce = false
	globalWatch = false
	globalEject = false
	globalFormat = "text"
	globalList = false
	globalClearCache = false

	cmd := newRootCmd(v)
	if err := cmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "chomp: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(v string) *cobra.Command {
	root := &cobra.Command{
		Use:           "chomp [targets...] [-- args...]",
		Short:         "A task runner driven by a declarative chompfile",
		Version:       v,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalClearCache {
				return runClearCache()
			}
			if globalList {
				return runList()
			}
			return runTargets(args)
		},
	}

	root.Flags().IntVarP(&globalJobs, "jobs", "j", runtime.NumCPU(), "maximum number of concurrent jobs")
	root.Flags().BoolVarP(&globalForce, "force", "f", false, "treat every job as always-run for this invocation")
	root.Flags().BoolVarP(&globalWatch, "watch", "w", false, "re-run targets when their dependencies change")
	root.Flags().StringVarP(&globalConfig, "config", "c", "", "path to the chompfile (default: ./chompfile.yaml)")
	root.Flags().BoolVar(&globalEject, "eject", false, "print the fully expanded, template-free manifest and exit")
	root.Flags().StringVar(&globalFormat, "format", "text", "output format for --list (text|json)")
	root.Flags().BoolVarP(&globalList, "list", "l", false, "list available targets and exit")
	root.Flags().BoolVar(&globalClearCache, "clear-cache", false, "remove the extension fetch cache and exit")

	return root
}

// loadResult bundles everything runTargets/runList need after a manifest
// has been parsed, validated, templates expanded, and its graph built.
type loadResult struct {
	manifest *config.Manifest
	g        *graph.Graph
	host     *scripting.Host
	root     string
}

func load() (*loadResult, error) {
	manifest, err := config.LoadManifest(globalConfig)
	if err != nil {
		return nil, err
	}

	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("chomp: failed to resolve working directory: %w", err)
	}

	host, err := scripting.NewHost()
	if err != nil {
		return nil, err
	}

	if len(manifest.Extensions) > 0 {
		cacheHome, err := dirs.CacheHome()
		if err != nil {
			return nil, err
		}
		cache := extensions.New(cacheHome)
		sources, err := cache.PrefetchAll(manifest.Extensions)
		if err != nil {
			return nil, fmt.Errorf("chomp: failed to load extensions: %w", err)
		}
		for _, name := range manifest.Extensions {
			if err := host.Eval(sources[name]); err != nil {
				return nil, fmt.Errorf("chomp: failed to evaluate extension %q: %w", name, err)
			}
		}
	}

	// Templates see the process environment with the manifest's env layered
	// over it.
	tplEnv := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			tplEnv[k] = v
		}
	}
	for k, v := range manifest.Env {
		tplEnv[k] = v
	}

	expanded, err := template.Expand(host, manifest.Tasks, tplEnv)
	if err != nil {
		return nil, err
	}
	manifest.Tasks = expanded

	g, err := graph.Build(manifest.Tasks, root)
	if err != nil {
		return nil, err
	}

	return &loadResult{manifest: manifest, g: g, host: host, root: root}, nil
}

func runTargets(targets []string) error {
	lr, err := load()
	if err != nil {
		return err
	}
	defer lr.host.Close()

	if globalEject {
		return printEjected(lr.manifest)
	}

	if len(targets) == 0 {
		if lr.manifest.DefaultTask == "" {
			return fmt.Errorf("chomp: no targets given and no default-task declared")
		}
		targets = []string{lr.manifest.DefaultTask}
	}

	l := launcher.New(lr.root)
	p := pool.New(int64(globalJobs), batcherFromHost(lr.host), l)
	logger := chomplog.Default()
	driver := scheduler.New(lr.g, p, logger, globalForce)

	ctx := signalContext()
	if err := driver.DriveTargets(ctx, targets); err != nil {
		if !globalWatch {
			return &exitError{code: 1}
		}
		logger.Errorf("initial run failed, continuing to watch: %v", err)
	}
	if !globalWatch {
		return nil
	}

	return watchLoop(ctx, driver, targets, logger)
}

// watchLoop re-drives targets on a short poll interval until the context
// is canceled (spec.md §6.2 --watch). This is intentionally a plain
// polling loop rather than an OS filesystem-event watcher: the file
// watcher/websocket push machinery is an explicit out-of-scope external
// concern (spec.md §1), and NeedsRun's mtime check is already idempotent
// against unchanged targets, so re-driving on a timer is both correct and
// simple.
func watchLoop(ctx context.Context, driver *scheduler.Driver, targets []string, logger *chomplog.Logger) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := driver.DriveTargets(ctx, targets); err != nil {
				logger.Errorf("watch run failed: %v", err)
			}
		}
	}
}

// signalContext returns a context canceled on SIGINT/SIGTERM. Cancellation
// stops the driver and pool.ExecFuture from waiting; it does not signal
// child processes that have already been dispatched.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx
}
