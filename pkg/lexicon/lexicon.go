// Package lexicon provides a reference in-memory implementation of the
// FST-shaped acceptor spec §4.3/§9 describes as the lexicon prefix filter:
// an automaton over 1-based label arcs (0 reserved for ε) that admits only
// label sequences spelling a known vocabulary word.
//
// Loading a real OpenFst-format lexicon is explicitly out of scope per
// spec §1 ("loading/saving the lexicon FST... treated as external
// collaborators, specified only at their interface"); no FST library
// appears anywhere in this module's reference corpus. [Lexicon] satisfies
// the [github.com/MrWong99/beamctc/pkg/trie.Matcher] interface structurally
// so [pkg/trie] never needs to import this package.
package lexicon

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/MrWong99/beamctc/pkg/alphabet"
)

// Lexicon is a deterministic acceptor built by repeatedly adding words as
// arc sequences. The zero value (via [New]) is the empty lexicon: it
// accepts no words, so every extension is rejected.
type Lexicon struct {
	// Transitions[state][arc] = next state. State 0 is always the start
	// state.
	Transitions []map[int]int64
	// Final[state] reports whether state accepts (a word ends there).
	Final []bool
	// Words is the plain-text vocabulary the lexicon was built from, kept
	// alongside the acceptor so a caller can hand it to
	// [github.com/MrWong99/beamctc/pkg/diagnostics.New] without maintaining
	// a second copy of the word list.
	Words []string
}

// New returns an empty lexicon containing only the start state.
func New() *Lexicon {
	return &Lexicon{
		Transitions: []map[int]int64{{}},
		Final:       []bool{false},
	}
}

// Vocabulary returns the word list the lexicon was built from, per
// [FromVocabulary] or a prior [Load]. May be empty for a lexicon assembled
// by hand via [Lexicon.AddWord].
func (l *Lexicon) Vocabulary() []string { return l.Words }

// Start returns the acceptor's start state.
func (l *Lexicon) Start() int64 { return 0 }

// IsFinal reports whether state accepts.
func (l *Lexicon) IsFinal(state int64) bool { return l.Final[state] }

// Find attempts the transition labelled arc from state.
func (l *Lexicon) Find(state int64, arc int) (int64, bool) {
	next, ok := l.Transitions[state][arc]
	return next, ok
}

// AddWord adds the word spelled by arcs (1-based FST arc labels) to the
// lexicon, sharing prefix states with any previously added word.
func (l *Lexicon) AddWord(arcs []int) {
	state := int64(0)
	for _, arc := range arcs {
		next, ok := l.Transitions[state][arc]
		if !ok {
			next = int64(len(l.Transitions))
			l.Transitions = append(l.Transitions, map[int]int64{})
			l.Final = append(l.Final, false)
			l.Transitions[state][arc] = next
		}
		state = next
	}
	l.Final[state] = true
}

// FromVocabulary builds a lexicon from a list of words, splitting each word
// into alphabet labels rune-by-rune and mapping them to FST arcs via
// [alphabet.Alphabet.FSTArcLabel] — the same offset [pkg/trie] uses, per
// spec §9's "must be centralized behind the Alphabet to avoid drift".
func FromVocabulary(a *alphabet.Alphabet, words []string) (*Lexicon, error) {
	lex := New()
	for _, w := range words {
		arcs := make([]int, 0, len(w))
		for _, r := range w {
			label, ok := a.LabelFromString(string(r))
			if !ok {
				return nil, fmt.Errorf("lexicon: word %q: rune %q not in alphabet", w, string(r))
			}
			arcs = append(arcs, a.FSTArcLabel(label))
		}
		lex.AddWord(arcs)
	}
	lex.Words = append([]string(nil), words...)
	return lex, nil
}

// gobLexicon mirrors Lexicon's exported shape for encoding/gob, which
// cannot serialize the map-in-slice shape directly across versions as
// cleanly as a plain struct copy; kept identical to Lexicon on purpose.
type gobLexicon struct {
	Transitions []map[int]int64
	Final       []bool
	Words       []string
}

// Save serializes the lexicon in a small gob-encoded binary format. This is
// not the real OpenFst binary format — that loader is explicitly out of
// scope per spec §1 — it exists so a lexicon fitted in one process can be
// round-tripped to another, per the original's save_dictionary (scorer.h).
func (l *Lexicon) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := gob.NewEncoder(bw)
	if err := enc.Encode(gobLexicon{Transitions: l.Transitions, Final: l.Final, Words: l.Words}); err != nil {
		return fmt.Errorf("lexicon: save: %w", err)
	}
	return bw.Flush()
}

// Load deserializes a lexicon previously written by [Lexicon.Save].
func Load(r io.Reader) (*Lexicon, error) {
	var g gobLexicon
	if err := gob.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("lexicon: load: %w", err)
	}
	return &Lexicon{Transitions: g.Transitions, Final: g.Final, Words: g.Words}, nil
}
