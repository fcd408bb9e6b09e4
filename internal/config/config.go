// Package config provides the configuration schema and loader for the
// beamctc decode server and CLI.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file via [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Decoder DecoderConfig `yaml:"decoder"`
}

// ServerConfig holds network and logging settings for the streaming decode
// server (internal/wsserver).
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
	// MetricsAddr is parsed but not read by cmd/ctcdecode, which serves the
	// Prometheus /metrics endpoint on ListenAddr.
	MetricsAddr string `yaml:"metrics_addr"`
}

// DecoderConfig holds the beam-search tunables and collaborator file paths
// spec §6 exposes: a decode is fully parameterized by these plus the
// per-request probability matrix.
type DecoderConfig struct {
	BeamSize   int     `yaml:"beam_size"`
	CutoffProb float64 `yaml:"cutoff_prob"`
	CutoffTopN int     `yaml:"cutoff_top_n"`
	TopPaths   int     `yaml:"top_paths"`
	NumWorkers int     `yaml:"num_workers"`

	// AlphabetPath is a newline-delimited label file, per [pkg/alphabet.Load].
	AlphabetPath string `yaml:"alphabet_path"`
	// LexiconPath, if set, is a gob-encoded [pkg/lexicon.Lexicon] previously
	// written by [pkg/lexicon.Lexicon.Save].
	LexiconPath string `yaml:"lexicon_path"`

	// LM configures the optional n-gram rescoring model. Zero value means no
	// Scorer is attached.
	LM LMConfig `yaml:"lm"`
}

// LMConfig configures the reference [pkg/lm.NGramModel] scorer.
type LMConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Order    int     `yaml:"order"`
	UTF8Mode bool    `yaml:"utf8_mode"`
	Alpha    float64 `yaml:"alpha"`
	Beta     float64 `yaml:"beta"`
	// TrainingCorpusPath, if set, is a newline-delimited text file of
	// sentences used to fit the reference n-gram model at startup.
	TrainingCorpusPath string `yaml:"training_corpus_path"`
}
