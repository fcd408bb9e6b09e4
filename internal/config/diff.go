package config

// ConfigDiff describes what changed between two configs, as reported by
// [Diff] to a [Watcher]'s onChange callback.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// BeamSizeChanged etc. flag the individual decoder tunables that moved;
	// a caller can cheaply decide whether a live DecoderState pool needs
	// rebuilding (alphabet/lexicon/LM changes do) or just a parameter tweak
	// on the next decode (beam_size/cutoff_prob/top_paths do not).
	BeamSizeChanged     bool
	CutoffProbChanged   bool
	CutoffTopNChanged   bool
	TopPathsChanged     bool
	NumWorkersChanged   bool
	AlphabetPathChanged bool
	LexiconPathChanged  bool
	LMChanged           bool
}

// Changed reports whether any field in d indicates a change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.BeamSizeChanged || d.CutoffProbChanged ||
		d.CutoffTopNChanged || d.TopPathsChanged || d.NumWorkersChanged ||
		d.AlphabetPathChanged || d.LexiconPathChanged || d.LMChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldD, newD := old.Decoder, new.Decoder
	d.BeamSizeChanged = oldD.BeamSize != newD.BeamSize
	d.CutoffProbChanged = oldD.CutoffProb != newD.CutoffProb
	d.CutoffTopNChanged = oldD.CutoffTopN != newD.CutoffTopN
	d.TopPathsChanged = oldD.TopPaths != newD.TopPaths
	d.NumWorkersChanged = oldD.NumWorkers != newD.NumWorkers
	d.AlphabetPathChanged = oldD.AlphabetPath != newD.AlphabetPath
	d.LexiconPathChanged = oldD.LexiconPath != newD.LexiconPath
	d.LMChanged = oldD.LM != newD.LM

	return d
}
