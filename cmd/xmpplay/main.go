/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loqalabs/loqa-xmp-go/internal/config"
	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
	"github.com/loqalabs/loqa-xmp-go/internal/plugin"
	"github.com/loqalabs/loqa-xmp-go/internal/xmp"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	defaultConfigPath = "xmp.env"
	defaultPlayerID   = "xmpplay-001"
)

// newLibrary is replaced in tests.
var newLibrary = func() decoder.Library { return xmp.NewLibrary() }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "play":
		err = runPlay(ctx, args[1:], stdout, stderr)
	case "probe":
		err = runProbe(ctx, args[1:], stdout, stderr)
	case "config":
		err = runConfig(args[1:], stdout, stderr)
	case "formats":
		fmt.Fprintln(stdout, strings.Join(plugin.Extensions(), " "))
	case "version":
		fmt.Fprintf(stdout, "%s (libxmp %s)\n", plugin.Name, xmp.Version())
	case "-h", "-help", "--help", "help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		log.Printf("❌ %v", err)
		return exitError
	}
}

var errUsage = errors.New("usage error")

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: xmpplay <command> [flags] [args]

commands:
  play     play a module file
  probe    print metadata of module files
  config   show or change playback settings
  formats  list known module file extensions
  version  print plugin and libxmp versions

run "xmpplay <command> -h" for command flags`)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags parses args and reports malformed flags as usage errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// openPlugin creates the plugin and loads its settings. A broken settings
// file is reported and playback continues with defaults.
func openPlugin(configPath string) *plugin.InputPlugin {
	p := plugin.New(newLibrary(), config.NewStore(configPath))
	if err := p.Init(); err != nil {
		log.Printf("⚠️  Settings not loaded: %v", err)
	}
	return p
}
