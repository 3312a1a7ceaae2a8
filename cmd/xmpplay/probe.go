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
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"
)

func runProbe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("probe", stderr)
	configPath := fs.String("config", defaultConfigPath, "settings file")
	jobs := fs.Int("j", runtime.NumCPU(), "files sniffed in parallel")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: probe needs at least one file", errUsage)
	}

	p := openPlugin(*configPath)
	defer p.Cleanup()

	results, err := p.ProbeMany(ctx, fs.Args(), *jobs)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%v\n", r.URI, r.Err)
			continue
		}
		m := r.Metadata
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d ch\n", r.URI, m.Title, m.Format, formatDuration(m.Duration), m.Channels)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be probed", failed, len(results))
	}
	return nil
}
