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
	"bytes"
	"io"
)

type keyAction int

const (
	keyPause keyAction = iota
	keySeekBack
	keySeekForward
	keyQuit
)

// parseKeys maps raw terminal input to actions. Unknown bytes and escape
// sequences are ignored.
func parseKeys(input []byte) []keyAction {
	var actions []keyAction
	for i := 0; i < len(input); i++ {
		switch c := input[i]; {
		case c == ' ':
			actions = append(actions, keyPause)
		case c == 'q' || c == 'Q' || c == 0x03: // Ctrl-C arrives as a byte in raw mode
			actions = append(actions, keyQuit)
		case c == 0x1b && i+2 < len(input) && input[i+1] == '[':
			switch input[i+2] {
			case 'D':
				actions = append(actions, keySeekBack)
			case 'C':
				actions = append(actions, keySeekForward)
			}
			i += 2
		}
	}
	return actions
}

// crlfWriter adds the carriage returns a raw-mode terminal no longer
// inserts by itself.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
