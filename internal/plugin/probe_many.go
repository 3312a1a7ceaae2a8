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

package plugin

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
)

// ProbeResult is the outcome for one URI of ProbeMany.
type ProbeResult struct {
	URI      string
	Metadata decoder.TrackMetadata
	Err      error
}

// ProbeMany probes uris with at most limit workers (no limit when
// limit <= 0). Per-file failures are reported in the results; the returned
// error is only set when ctx is cancelled. Results keep the input order.
func (p *InputPlugin) ProbeMany(ctx context.Context, uris []string, limit int) ([]ProbeResult, error) {
	results := make([]ProbeResult, len(uris))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, uri := range uris {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = ProbeResult{URI: uri, Err: err}
				return err
			}
			// Sniffing runs unlocked; only the full probe is serialized.
			if err := p.lib.Test(StripFileURI(uri)); err != nil {
				results[i] = ProbeResult{URI: uri, Err: err}
				return nil
			}
			meta, err := p.Probe(uri)
			results[i] = ProbeResult{URI: uri, Metadata: meta, Err: err}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
