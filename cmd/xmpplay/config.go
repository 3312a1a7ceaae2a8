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
	"fmt"
	"io"
	"strings"

	"github.com/loqalabs/loqa-xmp-go/internal/prefs"
)

// setFlags collects repeated -set field=value arguments.
type setFlags []string

func (s *setFlags) String() string { return strings.Join(*s, ",") }

func (s *setFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected field=value, got %q", v)
	}
	*s = append(*s, v)
	return nil
}

func runConfig(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("config", stderr)
	configPath := fs.String("config", defaultConfigPath, "settings file")
	var sets setFlags
	fs.Var(&sets, "set", "change a preference, field=value (repeatable)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	p := openPlugin(*configPath)
	defer p.Cleanup()

	ui := p.Preferences()
	if len(sets) > 0 {
		for _, kv := range sets {
			field, value, _ := strings.Cut(kv, "=")
			if err := ui.Set(field, value); err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
		}
		if err := p.ApplyPreferences(ui); err != nil {
			return err
		}
		ui = p.Preferences()
	}

	return printPreferences(stdout, &ui)
}

// printPreferences renders the preferences layout as indented text with
// the current value of every bound widget.
func printPreferences(w io.Writer, ui *prefs.UIState) error {
	var err error
	prefs.Walk(prefs.Layout(), func(wd prefs.Widget, depth int) {
		if err != nil {
			return
		}
		indent := strings.Repeat("  ", depth)
		switch wd.Kind {
		case prefs.KindNotebook:
			return
		case prefs.KindTab:
			_, err = fmt.Fprintf(w, "%s[%s]\n", indent, wd.Label)
		case prefs.KindBox:
			if wd.Label != "" {
				_, err = fmt.Fprintf(w, "%s%s:\n", indent, wd.Label)
			}
		case prefs.KindLabel:
			_, err = fmt.Fprintf(w, "%s%s\n", indent, wd.Label)
		case prefs.KindRadio, prefs.KindCheck:
			var v string
			if v, err = ui.Get(wd.Field); err != nil {
				return
			}
			mark := "[ ]"
			if wd.Kind == prefs.KindRadio {
				mark = "( )"
			}
			if v == "true" {
				mark = strings.Replace(mark, " ", "x", 1)
			}
			_, err = fmt.Fprintf(w, "%s%s %s  (%s)\n", indent, mark, wd.Label, wd.Field)
		case prefs.KindSpin:
			var v string
			if v, err = ui.Get(wd.Field); err != nil {
				return
			}
			_, err = fmt.Fprintf(w, "%s%s [%g..%g]  (%s)\n", indent, v, wd.Min, wd.Max, wd.Field)
		}
	})
	return err
}
