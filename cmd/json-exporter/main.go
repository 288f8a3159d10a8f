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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/quantilelabs/json-exporter/internal/config"
	"github.com/quantilelabs/json-exporter/internal/expo"
	"github.com/quantilelabs/json-exporter/internal/scheduler"
)

func main() {
	a := kingpin.New("json-exporter", "Declarative JSON-to-Prometheus metrics exporter")
	a.HelpFlag.Short('h')

	baseURL := a.Flag("base-url", "Prepended to every relative endpoint URL.").String()
	listen := a.Flag("listen", "Address to expose /metrics on.").Default("0.0.0.0:9114").String()
	scrapeTimeout := a.Flag("scrape-timeout", "Per-upstream-fetch deadline.").Default("30s").Duration()
	configFile := a.Arg("config", "Path to the exporter configuration file.").Required().String()

	if _, err := a.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "json-exporter:", err)
		os.Exit(2)
	}

	logger := newLogger()

	cfg, err := config.Load(*configFile)
	if err != nil {
		level.Error(logger).Log("msg", "loading configuration failed", "err", err)
		os.Exit(2)
	}

	reg := prometheus.NewRegistry()
	scrapeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: cfg.Namespace + "_scrape_duration_seconds",
		Help: "Time spent fetching and extracting all endpoints for one scrape.",
	})
	scrapeSamplesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: cfg.Namespace + "_scrape_samples_total",
		Help: "Number of samples produced by the most recent scrapes, cumulative.",
	})
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		scrapeDuration,
		scrapeSamplesTotal,
	)

	sched := scheduler.New(cfg, *baseURL, *scrapeTimeout, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><head><title>json-exporter</title></head><body>
<h1>json-exporter</h1><p><a href="/metrics">Metrics</a></p></body></html>`)
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		samples, warnings, err := sched.Scrape(r.Context())
		scrapeDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			level.Error(logger).Log("msg", "scrape failed", "err", err)
			http.Error(w, "scrape failed", http.StatusInternalServerError)
			return
		}
		for _, warn := range warnings {
			level.Warn(logger).Log("msg", "extraction warning", "warning", warn)
		}
		scrapeSamplesTotal.Add(float64(len(samples)))

		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

		mfs, err := reg.Gather()
		if err != nil {
			level.Warn(logger).Log("msg", "gathering self-metrics failed", "err", err)
		}
		enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				level.Warn(logger).Log("msg", "encoding self-metric family failed", "err", err)
			}
		}

		sinkWarnings, err := expo.Write(w, samples)
		if err != nil {
			level.Error(logger).Log("msg", "writing exposition failed", "err", err)
		}
		for _, warn := range sinkWarnings {
			level.Warn(logger).Log("msg", "exposition warning", "warning", warn)
		}
	})

	server := &http.Server{Addr: *listen, Handler: mux}

	var g run.Group
	{
		g.Add(func() error {
			level.Info(logger).Log("msg", "starting web server", "listen", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}
	{
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)

		g.Add(func() error {
			select {
			case <-term:
				level.Info(logger).Log("msg", "received interrupt, shutting down")
			case <-cancel:
			}
			return nil
		}, func(error) {
			close(cancel)
		})
	}

	if err := g.Run(); err != nil {
		level.Error(logger).Log("msg", "running json-exporter failed", "err", err)
		os.Exit(1)
	}
}

// newLogger builds a go-kit logfmt logger whose level is controlled by the
// LOG environment variable (error|warn|info|debug|trace); trace maps to
// debug plus an explicit "trace"=true key/value since go-kit/log has only
// four levels.
func newLogger() log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	lvl := strings.ToLower(os.Getenv("LOG"))
	switch lvl {
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "debug":
		logger = level.NewFilter(logger, level.AllowDebug())
	case "trace":
		logger = level.NewFilter(logger, level.AllowDebug())
		logger = log.With(logger, "trace", true)
	case "info", "":
		logger = level.NewFilter(logger, level.AllowInfo())
	default:
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return logger
}
