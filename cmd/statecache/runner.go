package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	goerrors "github.com/goliatone/go-errors"
	"github.com/urfave/cli/v3"

	"github.com/goliatone/go-repository-state/cache"
	"github.com/goliatone/go-repository-state/cache/sqlstore"
	"github.com/goliatone/go-repository-state/pkg/di"
)

// Runner holds the dependencies of every command action.
type Runner struct {
	logger *log.Logger
	output io.Writer
}

// RunnerOpts configures NewRunner.
type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a Runner. Nil options fall back to stderr logging and
// stdout output.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{logger: opts.Logger, output: opts.Output}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		migrateCommand, statsCommand, libraryCommand, invalidateCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// loadConfig reads the config file when it exists and applies flag
// overrides.
func (r *Runner) loadConfig(cmd *cli.Command) (cache.Config, error) {
	cfg := cache.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := cache.LoadConfig(path)
			if err != nil {
				return cache.Config{}, err
			}
			cfg = loaded
		} else if cmd.IsSet("config") {
			return cache.Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "config file not readable")
		}
	}

	if dsn := cmd.String("dsn"); dsn != "" {
		cfg.SQL.DSN = dsn
		if cfg.SQL.Driver == "" {
			cfg.SQL.Driver = cache.DriverSQLite
		}
	}
	if driver := cmd.String("driver"); driver != "" {
		cfg.SQL.Driver = driver
	}
	if scope := cmd.String("scope"); scope != "" {
		cfg.Scope = scope
	}
	return cfg, nil
}

func (r *Runner) openContainer(ctx context.Context, cmd *cli.Command) (*di.Container, error) {
	if cmd.Bool("verbose") {
		r.logger.SetLevel(log.DebugLevel)
	}
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.SQL.Driver == "" {
		return nil, goerrors.New("no SQL tier configured, set [sql] in the config file or pass --dsn", goerrors.CategoryBadInput)
	}
	r.logger.Debug("opening cache", "driver", cfg.SQL.Driver, "scope", cfg.Scope)
	return di.NewContainer(ctx, cfg, di.WithLogger(r.logger))
}

// Migrate creates the cache tables.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	container, err := r.openContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	return r.writePlainln("✓ Cache tables ready (%s)", container.Config().SQL.Driver)
}

// Stats prints the cached row count of every namespace.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	container, err := r.openContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	stats, err := container.DB().Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}
	if cmd.Bool("json") {
		if stats == nil {
			stats = []sqlstore.NamespaceStats{}
		}
		return r.writeJSON(stats)
	}

	if len(stats) == 0 {
		return r.writePlainln("No cached entities")
	}
	for _, s := range stats {
		if err := r.writePlainln("%-32s %6d rows  updated %s", s.Namespace, s.Rows, s.LastUpdated.Local().Format(time.DateTime)); err != nil {
			return err
		}
	}
	return nil
}

type libraryOutput struct {
	Namespace string    `json:"namespace"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
	IDs       []string  `json:"ids"`
}

// Library prints the stored library snapshot of a saved repository.
func (r *Runner) Library(ctx context.Context, cmd *cli.Command) error {
	container, err := r.openContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	ns := container.Namespace(cmd.String("name"))
	l, err := sqlstore.NewLibraryStore(container.DB(), ns).LoadLibrary(ctx)
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}
	if l == nil {
		return r.writePlainln("No library stored for %s", ns)
	}

	if cmd.Bool("json") {
		return r.writeJSON(libraryOutput{
			Namespace: ns,
			Count:     l.Len(),
			UpdatedAt: l.UpdatedAt,
			IDs:       l.Slice(),
		})
	}
	if err := r.writePlainln("%s: %d saved, synced %s", ns, l.Len(), l.UpdatedAt.Local().Format(time.DateTime)); err != nil {
		return err
	}
	for _, id := range l.Slice() {
		if err := r.writePlain("  %s\n", id); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate drops a repository namespace from the SQL tier.
func (r *Runner) Invalidate(ctx context.Context, cmd *cli.Command) error {
	container, err := r.openContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	name := cmd.String("name")
	dropped, err := container.DropNamespace(ctx, name)
	if err != nil {
		return err
	}
	r.logger.Info("namespace invalidated", "namespace", container.Namespace(name), "dropped", dropped)
	return r.writePlainln("✓ Dropped %d cached entries of %s", dropped, container.Namespace(name))
}

func (r *Runner) writeJSON(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain(format+"\n", args...)
}
