package config_test

import (
	"testing"

	"github.com/MrWong99/beamctc/internal/config"
)

func baseDecoderConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Decoder: config.DecoderConfig{
			BeamSize:     100,
			CutoffProb:   1.0,
			CutoffTopN:   40,
			TopPaths:     1,
			NumWorkers:   2,
			AlphabetPath: "/data/alphabet.txt",
		},
	}
}

func TestDiffNoChanges(t *testing.T) {
	cfg := baseDecoderConfig()
	other := cfg
	d := config.Diff(&cfg, &other)
	if d.Changed() {
		t.Errorf("Diff of identical configs reported a change: %+v", d)
	}
}

func TestDiffDetectsLogLevelChange(t *testing.T) {
	oldCfg := baseDecoderConfig()
	newCfg := oldCfg
	newCfg.Server.LogLevel = config.LogDebug

	d := config.Diff(&oldCfg, &newCfg)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("Diff = %+v, want LogLevelChanged=true NewLogLevel=debug", d)
	}
}

func TestDiffDetectsBeamSizeChange(t *testing.T) {
	oldCfg := baseDecoderConfig()
	newCfg := oldCfg
	newCfg.Decoder.BeamSize = 200

	d := config.Diff(&oldCfg, &newCfg)
	if !d.BeamSizeChanged || !d.Changed() {
		t.Errorf("Diff = %+v, want BeamSizeChanged=true", d)
	}
}

func TestDiffDetectsAlphabetPathChange(t *testing.T) {
	oldCfg := baseDecoderConfig()
	newCfg := oldCfg
	newCfg.Decoder.AlphabetPath = "/data/other-alphabet.txt"

	d := config.Diff(&oldCfg, &newCfg)
	if !d.AlphabetPathChanged {
		t.Errorf("Diff = %+v, want AlphabetPathChanged=true", d)
	}
}

func TestDiffDetectsLMChange(t *testing.T) {
	oldCfg := baseDecoderConfig()
	newCfg := oldCfg
	newCfg.Decoder.LM = config.LMConfig{Enabled: true, Order: 3, Alpha: 0.5, TrainingCorpusPath: "/data/corpus.txt"}

	d := config.Diff(&oldCfg, &newCfg)
	if !d.LMChanged {
		t.Errorf("Diff = %+v, want LMChanged=true", d)
	}
}
