package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{
		Decoder: DecoderConfig{
			BeamSize:   100,
			CutoffProb: 1.0,
			CutoffTopN: 40,
			TopPaths:   1,
			NumWorkers: 1,
		},
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values, per spec §6's
// decode-parameter constraints. It returns a joined error listing every
// validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	d := cfg.Decoder
	if d.BeamSize <= 0 || d.BeamSize > 10_000 {
		errs = append(errs, fmt.Errorf("decoder.beam_size %d out of range (0,10000]", d.BeamSize))
	}
	if d.CutoffProb <= 0 || d.CutoffProb > 1.0 {
		errs = append(errs, fmt.Errorf("decoder.cutoff_prob %v out of range (0,1.0]", d.CutoffProb))
	}
	if d.CutoffTopN <= 0 {
		errs = append(errs, fmt.Errorf("decoder.cutoff_top_n %d must be positive", d.CutoffTopN))
	}
	if d.TopPaths <= 0 {
		errs = append(errs, fmt.Errorf("decoder.top_paths %d must be positive", d.TopPaths))
	}
	if d.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("decoder.num_workers %d must be >= 1", d.NumWorkers))
	}
	if d.AlphabetPath == "" {
		errs = append(errs, errors.New("decoder.alphabet_path is required"))
	}
	if d.LM.Enabled {
		if d.LM.Order <= 0 {
			errs = append(errs, fmt.Errorf("decoder.lm.order %d must be positive when lm.enabled", d.LM.Order))
		}
		if d.LM.TrainingCorpusPath == "" {
			errs = append(errs, errors.New("decoder.lm.training_corpus_path is required when lm.enabled"))
		}
	}

	return errors.Join(errs...)
}
