// Command ctcdecode is the main entry point for the beamctc decode server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/beamctc/internal/config"
	"github.com/MrWong99/beamctc/internal/health"
	"github.com/MrWong99/beamctc/internal/observe"
	"github.com/MrWong99/beamctc/internal/resilience"
	"github.com/MrWong99/beamctc/internal/wsserver"
	"github.com/MrWong99/beamctc/pkg/alphabet"
	"github.com/MrWong99/beamctc/pkg/decoder"
	"github.com/MrWong99/beamctc/pkg/diagnostics"
	"github.com/MrWong99/beamctc/pkg/lexicon"
	"github.com/MrWong99/beamctc/pkg/lm"
	"github.com/MrWong99/beamctc/pkg/trie"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ctcdecode: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ctcdecode: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("ctcdecode starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "beamctc"})
	if err != nil {
		slog.Error("failed to initialise observability providers", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Decoder dependencies ──────────────────────────────────────────────────
	a, opts, dict, diag, err := buildDecodeDeps(&cfg.Decoder)
	if err != nil {
		slog.Error("failed to build decoder dependencies", "err", err)
		return 1
	}

	wss := wsserver.New(a, opts, dict, diag, metrics)

	// A bad edit to the config file on disk must not repeatedly hammer
	// alphabet/lexicon/LM loading with a broken path; the circuit breaker
	// gives up retrying a reload that keeps failing until it backs off.
	reloadBreaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "decoder-hot-reload",
		MaxFailures: 3,
	})
	watcher, err := config.NewWatcher(*configPath, func(oldCfg, newCfg *config.Config) {
		diff := config.Diff(oldCfg, newCfg)
		if !diff.Changed() {
			return
		}
		if diff.LogLevelChanged {
			slog.SetDefault(newLogger(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}

		decoderTouched := diff.BeamSizeChanged || diff.CutoffProbChanged || diff.CutoffTopNChanged ||
			diff.TopPathsChanged || diff.AlphabetPathChanged || diff.LexiconPathChanged || diff.LMChanged
		if !decoderTouched {
			return
		}

		err := reloadBreaker.Execute(func() error {
			a, opts, dict, diag, err := buildDecodeDeps(&newCfg.Decoder)
			if err != nil {
				return err
			}
			wss.SetConfig(a, opts, dict, diag)
			return nil
		})
		if err != nil {
			slog.Error("decoder hot reload failed", "err", err)
			return
		}
		slog.Info("decoder configuration reloaded")
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	hh := health.New()
	hh.Register(mux)
	mux.Handle("/v1/stream", wss)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("listener error", "err", err)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
		return 1
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		slog.Warn("observability shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// buildDecodeDeps loads the alphabet, optional lexicon matcher, and optional
// LM scorer named by decCfg and assembles validated [decoder.Options]. It is
// called once at startup and again from the config watcher's onChange
// callback on every hot reload. The returned [diagnostics.Suggester] is nil
// unless a lexicon is configured, since it has no vocabulary to suggest from
// otherwise.
func buildDecodeDeps(decCfg *config.DecoderConfig) (*alphabet.Alphabet, decoder.Options, trie.Matcher, *diagnostics.Suggester, error) {
	a, err := alphabet.LoadFile(decCfg.AlphabetPath)
	if err != nil {
		return nil, decoder.Options{}, nil, nil, fmt.Errorf("loading alphabet: %w", err)
	}

	var dict trie.Matcher
	var diag *diagnostics.Suggester
	if decCfg.LexiconPath != "" {
		lex, err := loadLexicon(decCfg.LexiconPath)
		if err != nil {
			return nil, decoder.Options{}, nil, nil, fmt.Errorf("loading lexicon: %w", err)
		}
		dict = lex
		if vocab := lex.Vocabulary(); len(vocab) > 0 {
			diag = diagnostics.New(vocab)
		}
	}

	var scorer lm.Scorer
	if decCfg.LM.Enabled {
		model, err := buildNGramModel(decCfg.LM)
		if err != nil {
			return nil, decoder.Options{}, nil, nil, fmt.Errorf("building LM: %w", err)
		}
		scorer = model
	}

	opts := decoder.Options{
		BeamSize:   decCfg.BeamSize,
		CutoffProb: decCfg.CutoffProb,
		CutoffTopN: decCfg.CutoffTopN,
		TopPaths:   decCfg.TopPaths,
		Scorer:     scorer,
		Dict:       dict,
	}
	if err := opts.Validate(a.Size()); err != nil {
		return nil, decoder.Options{}, nil, nil, fmt.Errorf("invalid decoder configuration: %w", err)
	}
	return a, opts, dict, diag, nil
}

// loadLexicon opens and gob-decodes a lexicon previously written by
// [lexicon.Lexicon.Save].
func loadLexicon(path string) (*lexicon.Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return lexicon.Load(bufio.NewReader(f))
}

// buildNGramModel loads a newline-delimited training corpus and fits a
// reference stupid-backoff n-gram model, per cfg's order/weights.
func buildNGramModel(cfg config.LMConfig) (*lm.NGramModel, error) {
	f, err := os.Open(cfg.TrainingCorpusPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sentences [][]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sentences = append(sentences, strings.Fields(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	model := lm.NewNGramModel(cfg.Order, cfg.UTF8Mode)
	model.Train(sentences)
	model.SetWeights(cfg.Alpha, cfg.Beta)
	return model, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
