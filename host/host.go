// Copyright 2021 Jonathan Amsterdam.

// Package host runs a program built around a Manager: it parses the command
// line with cmdopts, finds configuration files, sets up logging, and then
// either runs the manager once (interactive mode) or keeps it running until
// its context is cancelled (service mode).
package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jba/cmdopts"
	"golang.org/x/term"
)

// A Manager is the program's own logic.
type Manager interface {
	// Startup is called once configuration and logging are ready.
	// In service mode the service stops if it returns an error.
	Startup(ctx context.Context, app *App) error
	// Shutdown is called when the program ends, even if Startup failed.
	Shutdown(ctx context.Context)
}

// A Describer provides text for help output. Managers may implement it.
type Describer interface {
	// Description is printed before the list of options.
	Description() string
	// ExampleOfUsage, if not empty, is printed after the list of options.
	ExampleOfUsage() string
}

// Config controls Run. The zero value runs a service named after the executable.
type Config struct {
	// Name is the program's name. It defaults to the executable's base name
	// without extension. In service mode the --prefix option is prepended.
	Name string
	// Interactive selects a single Startup/Shutdown cycle instead of a service.
	Interactive bool
	// Options is a pointer to the struct populated from the command line in
	// interactive mode. Service mode parses ServiceOptions instead.
	Options any
	// HelpOnEmpty prints help when there are no arguments. Startup is then skipped.
	HelpOnEmpty bool
	// StartDir is where the search for the Config directory begins and what
	// relative log directories are resolved against. It defaults to the
	// directory of the executable.
	StartDir string

	Stdout io.Writer // defaults to os.Stdout
	Stderr io.Writer // defaults to os.Stderr
	Stdin  io.Reader // defaults to os.Stdin
	// LogConsole receives log records alongside the log file. It defaults to
	// Stdout. Set it to io.Discard to log only to the file.
	LogConsole io.Writer
	// IsTerminal reports whether Stdin is an interactive console.
	// It defaults to checking os.Stdin.
	IsTerminal func() bool
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) setDefaults() error {
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.LogConsole == nil {
		c.LogConsole = c.Stdout
	}
	if c.IsTerminal == nil {
		c.IsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Name != "" && c.StartDir != "" {
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	if c.Name == "" {
		base := filepath.Base(exe)
		c.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if c.StartDir == "" {
		c.StartDir = filepath.Dir(exe)
	}
	return nil
}

// App is what a Manager sees of the running program.
type App struct {
	// Name is the service name: the program name with any prefix applied.
	Name        string
	Interactive bool
	// Options is the parsed command line: Config.Options in interactive
	// mode, a *ServiceOptions in service mode.
	Options     any
	Params      *Params
	Logger      *slog.Logger
	ConfigFiles []string
	LogDir      string
	StartDir    string
	Args        []string
	InstanceID  string
}

// Exit codes returned by Run.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Run parses args (without the program name), prepares the App and runs mgr.
// It returns a process exit code: ExitOK after help or a clean run,
// ExitUsage when a required option is missing, and ExitError otherwise.
func Run(ctx context.Context, cfg Config, mgr Manager, args []string) int {
	if err := cfg.setDefaults(); err != nil {
		fmt.Fprintln(cfg.Stderr, err)
		return ExitError
	}

	helpShown := false
	p := &cmdopts.Parser{
		Program:     cfg.Name,
		HelpOnEmpty: cfg.HelpOnEmpty,
		Out:         cfg.Stdout,
		AfterHelp:   func() { helpShown = true },
	}
	if d, ok := mgr.(Describer); ok {
		p.Header = d.Description()
		if ex := d.ExampleOfUsage(); ex != "" {
			p.Footer = "\nExample of usage:\n\n" + ex
		}
	}

	var svcOpts ServiceOptions
	target := cfg.Options
	if !cfg.Interactive {
		target = &svcOpts
	} else if target == nil {
		target = &struct{}{}
	}
	res, err := p.Parse(args, target)
	if err != nil {
		fmt.Fprintln(cfg.Stderr, err)
		return ExitError
	}
	switch {
	case res.Status == cmdopts.RequiredMissing:
		if cfg.IsTerminal() {
			fmt.Fprint(cfg.Stderr, color.RedString("Press ENTER for help"))
			bufio.NewReader(cfg.Stdin).ReadString('\n')
		}
		if !helpShown {
			if err := p.PrintHelp(target); err != nil {
				fmt.Fprintln(cfg.Stderr, err)
			}
		}
		return ExitUsage
	case res.Status == cmdopts.HelpRequested, helpShown:
		return ExitOK
	}

	app := &App{
		Name:        cfg.Name,
		Interactive: cfg.Interactive,
		Options:     target,
		StartDir:    cfg.StartDir,
		Args:        args,
		InstanceID:  uuid.NewString(),
	}
	if !cfg.Interactive {
		app.Name = svcOpts.ServiceName(cfg.Name)
	}
	app.Params, app.ConfigFiles, err = LoadParams(cfg.StartDir, app.Name)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "%s: %v\n", app.Name, err)
		return ExitError
	}
	closeLog, err := setupLogging(app, &cfg)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "%s: %v\n", app.Name, err)
		return ExitError
	}
	defer closeLog()

	if cfg.Interactive {
		return runInteractive(ctx, app, mgr)
	}
	return runService(ctx, app, mgr)
}

func runInteractive(ctx context.Context, app *App, mgr Manager) int {
	code := ExitOK
	if err := startup(ctx, app, mgr); err != nil {
		app.Logger.Error("startup failed", "err", err)
		code = ExitError
	}
	mgr.Shutdown(context.WithoutCancel(ctx))
	return code
}

func runService(ctx context.Context, app *App, mgr Manager) int {
	log := app.Logger.With("service", app.Name)
	log.Info("service started")
	code := ExitOK
	if err := startup(ctx, app, mgr); err != nil {
		log.Error("service startup failed", "err", err)
		code = ExitError
	} else {
		log.Info("service initialization done")
		<-ctx.Done()
	}
	mgr.Shutdown(context.WithoutCancel(ctx))
	log.Info("service shut down")
	return code
}

// startup calls mgr.Startup, turning a panic into an error.
func startup(ctx context.Context, app *App, mgr Manager) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return mgr.Startup(ctx, app)
}
