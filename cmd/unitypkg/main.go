// Command unitypkg inspects and extracts .unitypackage files.
//
// Usage:
//
//	unitypkg [-config file] [-v] <command> <package> [flags] [args]
//
// Commands:
//
//	list     [-ext .png,.fbx] [-kind texture|model|all]
//	tree
//	show     <guid>
//	cat      [-meta] <guid>
//	extract  -dest DIR [-overwrite] [-meta] [guid...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/meigma/unitypackage"
	"github.com/meigma/unitypackage/config"
	"github.com/meigma/unitypackage/importer"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// env carries the state shared by all commands.
type env struct {
	stdout io.Writer
	idx    *unitypackage.Index
	im     *importer.Importer
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{name: "list", usage: "list <package> [-ext .png,.fbx] [-kind texture|model|all]", run: runList},
	{name: "tree", usage: "tree <package>", run: runTree},
	{name: "show", usage: "show <package> <guid>", run: runShow},
	{name: "cat", usage: "cat <package> [-meta] <guid>", run: runCat},
	{name: "extract", usage: "extract <package> -dest DIR [-overwrite] [-meta] [guid...]", run: runExtract},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: unitypkg [-config file] [-v] <command> <package> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\n", c.usage)
	}
	fmt.Fprintln(w)
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("unitypkg", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "YAML configuration file")
	verbose := fs.Bool("v", false, "log at debug level")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage(stdout, fs)
			return exitOK
		}
		fmt.Fprintf(stderr, "unitypkg: %v\n", err)
		usage(stderr, fs)
		return exitUsage
	}
	if fs.NArg() < 2 {
		usage(stderr, fs)
		return exitUsage
	}
	cmd, ok := lookup(fs.Arg(0))
	if !ok {
		fmt.Fprintf(stderr, "unitypkg: unknown command %q\n", fs.Arg(0))
		usage(stderr, fs)
		return exitUsage
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(stderr, "unitypkg: load config: %v\n", err)
			return exitError
		}
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "unitypkg: %v\n", err)
		return exitError
	}
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	idx, err := unitypackage.Open(fs.Arg(1),
		unitypackage.WithLogger(logger),
		unitypackage.WithMaxAnomalies(cfg.MaxAnomalies),
		unitypackage.WithSpoolDir(cfg.SpoolDir),
		unitypackage.WithMaxSpoolSize(cfg.MaxSpoolSize),
		unitypackage.WithMaxMemberSize(cfg.MaxMemberSize),
	)
	if err != nil {
		fmt.Fprintf(stderr, "unitypkg: %v\n", err)
		return exitError
	}
	defer idx.Close()

	e := &env{
		stdout: stdout,
		idx:    idx,
		im: importer.New(idx,
			importer.WithTextureExtensions(cfg.TextureExtensions...),
			importer.WithModelExtensions(cfg.ModelExtensions...),
			importer.WithWorkers(cfg.Workers),
			importer.WithTempDir(cfg.TempDir),
			importer.WithLogger(logger),
		),
	}
	if err := cmd.run(ctx, e, fs.Args()[2:]); err != nil {
		fmt.Fprintf(stderr, "unitypkg: %s: %v\n", cmd.name, err)
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "usage: unitypkg %s\n", cmd.usage)
			return exitUsage
		}
		return exitError
	}
	return exitOK
}
