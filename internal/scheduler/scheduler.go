// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler drives a scrape: fetching every configured endpoint
// and global-label source, running extraction, and merging the results
// into a single deterministic sample stream. It is the only component
// in this module that fans requests out concurrently; every upstream
// fetch runs with its own deadline, and partial failures never fail the
// whole scrape.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/sync/errgroup"

	"github.com/quantilelabs/json-exporter/internal/config"
	"github.com/quantilelabs/json-exporter/internal/extract"
	"github.com/quantilelabs/json-exporter/internal/jsondoc"
	"github.com/quantilelabs/json-exporter/internal/sample"
	"github.com/quantilelabs/json-exporter/internal/urltemplate"
)

// Scheduler holds the configuration and HTTP client a scrape runs
// against.
type Scheduler struct {
	cfg     *config.Config
	client  *http.Client
	baseURL string
	timeout time.Duration
	logger  log.Logger
}

// New builds a Scheduler backed by a clean, non-shared HTTP transport.
// The transport is built once per process and reused across scrapes;
// there is no per-scrape response cache, so every scrape re-fetches
// every endpoint from scratch.
func New(cfg *config.Config, baseURL string, timeout time.Duration, logger log.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		client:  cleanhttp.DefaultClient(),
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger,
	}
}

// Scrape fetches every endpoint and global-label source concurrently,
// runs extraction, applies global labels as defaults, and returns the
// merged sample stream in endpoint declaration order, regardless of
// which fetch happens to finish first. The returned error is non-nil
// only when ctx itself is done; individual fetch/extraction failures are
// absorbed into warnings and the per-endpoint "up" sample.
func (s *Scheduler) Scrape(ctx context.Context) ([]sample.Sample, []string, error) {
	endpointSamples := make([][]sample.Sample, len(s.cfg.Endpoints))
	endpointUp := make([]float64, len(s.cfg.Endpoints))
	var warnings []string
	var warnMu sync.Mutex

	addWarning := func(msg string) {
		warnMu.Lock()
		warnings = append(warnings, msg)
		warnMu.Unlock()
	}

	globalLabelResults := make([]map[string]string, len(s.cfg.GlobalLabels))

	g, gctx := errgroup.WithContext(ctx)

	for i, ep := range s.cfg.Endpoints {
		i, ep := i, ep
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			samples, up, warns := s.scrapeEndpoint(gctx, ep)
			endpointSamples[i] = samples
			endpointUp[i] = up
			for _, w := range warns {
				addWarning(w)
			}
			return nil
		})
	}

	for i, gl := range s.cfg.GlobalLabels {
		i, gl := i, gl
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			labels, err := s.resolveGlobalLabels(gctx, gl)
			if err != nil {
				addWarning(fmt.Sprintf("global label source failed: %s", err))
				return nil
			}
			globalLabelResults[i] = labels
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, warnings, err
	}
	if err := ctx.Err(); err != nil {
		return nil, warnings, err
	}

	merged := map[string]string{}
	for _, m := range globalLabelResults {
		for k, v := range m {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []sample.Sample
	for i, ep := range s.cfg.Endpoints {
		for _, smp := range endpointSamples[i] {
			for _, k := range keys {
				smp.Labels = sample.WithDefaultLabel(smp.Labels, k, merged[k])
			}
			out = append(out, smp)
		}
		out = append(out, sample.Sample{
			Name:   s.cfg.Namespace + "_up",
			Type:   sample.Gauge,
			Labels: []sample.Label{{Name: "endpoint", Value: ep.ID}},
			Value:  endpointUp[i],
		})
	}
	return out, warnings, nil
}

// scrapeEndpoint fetches and extracts one endpoint. It never returns an
// error: every failure mode (fetch, decode, fatal extraction error) is
// recorded as a warning and up=0, and aborts only that endpoint's
// samples rather than the whole scrape.
func (s *Scheduler) scrapeEndpoint(ctx context.Context, ep *config.Endpoint) (samples []sample.Sample, up float64, warnings []string) {
	url, err := ep.EffectiveURL()
	if err != nil {
		level.Warn(s.logger).Log("msg", "endpoint URL resolution failed", "endpoint", ep.ID, "err", err)
		return nil, 0, []string{fmt.Sprintf("endpoint %q: %s", ep.ID, err)}
	}
	url = urltemplate.WithBase(s.baseURL, url)

	root, err := s.fetchJSON(ctx, url)
	if err != nil {
		level.Warn(s.logger).Log("msg", "endpoint fetch failed", "endpoint", ep.ID, "url", url, "err", err)
		return nil, 0, []string{fmt.Sprintf("endpoint %q fetch failed: %s", ep.ID, err)}
	}

	samples, warns, err := extract.Endpoint(s.cfg.Namespace, ep.Metrics, root)
	if err != nil {
		level.Warn(s.logger).Log("msg", "endpoint extraction aborted", "endpoint", ep.ID, "err", err)
		return nil, 1, append(warns, fmt.Sprintf("endpoint %q extraction aborted: %s", ep.ID, err))
	}
	return samples, 1, warns
}

func (s *Scheduler) fetchJSON(ctx context.Context, url string) (interface{}, error) {
	fctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}

	doc, err := jsondoc.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	return doc, nil
}
