package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"acdisplay/cmd/internal/app"

	flag "github.com/spf13/pflag"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// exitUsage is EX_USAGE from sysexits.h.
const exitUsage = 64

type options struct {
	app.Options
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("acdisplay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.ConfigPath, "config", "c", app.DefaultConfigPath, "path to the JSON configuration file")
	fs.BoolVar(&opts.Simulate, "simulate", false, "serve a simulated sine-wave telemetry source instead of the UDP feed")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print the version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: acdisplay [--config PATH] [--simulate] [--version]\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fs.Usage()
		}
		return options{}, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return options{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
	if opts.showVersion {
		fmt.Printf("acdisplay version %s\n", version)
		return
	}

	if err := app.Run(opts.Options); err != nil {
		log.Fatal(err)
	}
}
