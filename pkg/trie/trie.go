// Package trie implements the shared prefix trie the beam search maintains
// across frames: one node per surviving CTC prefix, with per-node
// blank/non-blank log-probabilities, lazy pruning, and optional
// dictionary-guarded child admission.
//
// Per the design note in spec §9 ("cyclic back-pointers → arena +
// indices"), nodes live in a growable arena and are addressed by index
// ([NodeID]) rather than by pointer, so the parent/child relationship never
// forms a Go pointer cycle and node removal is a plain freelist return
// instead of manual cycle-breaking.
package trie

import "github.com/MrWong99/beamctc/pkg/logmath"

// NodeID addresses a node within a [Trie]'s arena. Id 0 is the root; use
// [NoNode] for "absent".
type NodeID int32

// NoNode is the sentinel for "no node" (e.g. the root's parent).
const NoNode NodeID = -1

// RootLabel is the sentinel character value carried by the root node, per
// spec §3 ("character: label id, or sentinel ROOT (= -1) at the root").
const RootLabel = -1

// Matcher is the FST-shaped lexicon acceptor consulted by [Trie.Extend]
// when a dictionary is attached. Implementations model a deterministic
// automaton over 1-based arc labels (0 is reserved for ε, per spec
// invariant 3): [Matcher.Start] is the initial state, [Matcher.Find]
// attempts a transition, and [Matcher.IsFinal] reports whether a state
// accepts (a word boundary). See package lexicon for a reference
// implementation.
type Matcher interface {
	Start() int64
	IsFinal(state int64) bool
	Find(state int64, arcLabel int) (next int64, ok bool)
}

type childEdge struct {
	label int
	id    NodeID
}

type node struct {
	character int
	timestep  int
	parent    NodeID
	children  []childEdge

	logProbBPrev, logProbNBPrev float64
	logProbBCur, logProbNBCur   float64
	logProbC                    float64
	score                       float64

	exists bool

	dictState int64
	inUse     bool
}

// Trie owns the arena of all nodes for a single decode. It is not
// thread-safe: a [Trie] is owned by exactly one decoder state for the
// lifetime of one decode, per spec §5.
type Trie struct {
	nodes []node
	free  []NodeID
	root  NodeID

	dict     Matcher
	arcLabel func(label int) int
}

// New creates an empty trie with just a root node, per spec invariant 4:
// log_prob_b_prev = 0, all other log-probs -∞, score = 0.
func New() *Trie {
	t := &Trie{}
	t.root = t.alloc(node{
		character:     RootLabel,
		parent:        NoNode,
		logProbBPrev:  0,
		logProbNBPrev: logmath.NegInf,
		logProbBCur:   logmath.NegInf,
		logProbNBCur:  logmath.NegInf,
		logProbC:      logmath.NegInf,
		score:         0,
		exists:        true,
	})
	return t
}

// NewWithDictionary creates an empty trie whose root is attached to the
// given lexicon [Matcher]. arcLabel maps a 0-based decoder label to its
// 1-based FST arc label (spec invariant 3); pass nil to use the default
// label+1 mapping. Prefer passing [github.com/MrWong99/beamctc/pkg/alphabet.Alphabet.FSTArcLabel]
// so the offset has one owner across the module, per spec §9.
func NewWithDictionary(m Matcher, arcLabel func(label int) int) *Trie {
	t := New()
	t.dict = m
	if arcLabel != nil {
		t.arcLabel = arcLabel
	}
	t.nodes[t.root].dictState = m.Start()
	return t
}

func (t *Trie) alloc(n node) NodeID {
	n.inUse = true
	if len(t.free) > 0 {
		id := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.nodes[id] = n
		return id
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

func (t *Trie) dealloc(id NodeID) {
	t.nodes[id] = node{}
	t.free = append(t.free, id)
}

func (t *Trie) toArc(label int) int {
	if t.arcLabel != nil {
		return t.arcLabel(label)
	}
	return label + 1
}

// Root returns the trie's root node id.
func (t *Trie) Root() NodeID { return t.root }

// Character returns the label a node represents, or [RootLabel] at the root.
func (t *Trie) Character(id NodeID) int { return t.nodes[id].character }

// Timestep returns the frame index at which this node's label was first
// (best) observed.
func (t *Trie) Timestep(id NodeID) int { return t.nodes[id].timestep }

// Parent returns id's parent, or [NoNode] at the root.
func (t *Trie) Parent(id NodeID) NodeID { return t.nodes[id].parent }

// Score returns the node's committed beam-ranking score, per spec
// invariant 1: log_sum_exp(log_prob_b_prev, log_prob_nb_prev).
func (t *Trie) Score(id NodeID) float64 { return t.nodes[id].score }

// Exists reports whether id is still a live beam member (not tombstoned).
func (t *Trie) Exists(id NodeID) bool { return t.nodes[id].exists }

// IsRoot reports whether id is the trie's root.
func (t *Trie) IsRoot(id NodeID) bool { return t.nodes[id].character == RootLabel }

// LogProbBPrev returns the node's committed ends-in-blank log-probability.
func (t *Trie) LogProbBPrev(id NodeID) float64 { return t.nodes[id].logProbBPrev }

// LogProbNBPrev returns the node's committed ends-in-non-blank log-probability.
func (t *Trie) LogProbNBPrev(id NodeID) float64 { return t.nodes[id].logProbNBPrev }

// LogProbC returns the best single-frame emission log-probability observed
// for this label on this path.
func (t *Trie) LogProbC(id NodeID) float64 { return t.nodes[id].logProbC }

// HasChildren reports whether id currently has any children (used by the
// leaf-only timestep-refinement rule, spec invariant 5).
func (t *Trie) HasChildren(id NodeID) bool { return len(t.nodes[id].children) > 0 }

// AddLogProbBCur accumulates v into id's in-progress ends-in-blank
// log-probability via log-sum-exp.
func (t *Trie) AddLogProbBCur(id NodeID, v float64) {
	n := &t.nodes[id]
	n.logProbBCur = logmath.LogSumExp(n.logProbBCur, v)
}

// AddLogProbNBCur accumulates v into id's in-progress ends-in-non-blank
// log-probability via log-sum-exp.
func (t *Trie) AddLogProbNBCur(id NodeID, v float64) {
	n := &t.nodes[id]
	n.logProbNBCur = logmath.LogSumExp(n.logProbNBCur, v)
}

// findChild returns the existing child of id labelled newChar, if any, and
// opportunistically refines its timestep per spec invariant 5: only when
// the child is currently a leaf and a strictly larger log_prob_c is
// observed.
func (t *Trie) findChild(id NodeID, newChar int, logProbC float64, newTimestep int) NodeID {
	children := t.nodes[id].children
	for _, e := range children {
		if e.label != newChar {
			continue
		}
		cn := &t.nodes[e.id]
		if cn.logProbC < logProbC && len(cn.children) == 0 {
			cn.logProbC = logProbC
			cn.timestep = newTimestep
		}
		return e.id
	}
	return NoNode
}

// Extend implements spec §4.2's extend(): admit or reuse a child of id
// labelled newChar. reset controls whether an FST-final dictionary state is
// snapped back to the start state (word boundary); pass true in the normal
// beam-update path. Returns (NoNode, false) if a dictionary is attached and
// rejects the transition — the caller must treat that as "this extension
// leaves the lexicon", not an error (spec §7, DictionaryRejected).
func (t *Trie) Extend(id NodeID, newChar, newTimestep int, logProbC float64, reset bool) (NodeID, bool) {
	if childID := t.findChild(id, newChar, logProbC, newTimestep); childID != NoNode {
		cn := &t.nodes[childID]
		if !cn.exists {
			cn.exists = true
			cn.logProbBPrev = logmath.NegInf
			cn.logProbNBPrev = logmath.NegInf
			cn.logProbBCur = logmath.NegInf
			cn.logProbNBCur = logmath.NegInf
		}
		return childID, true
	}

	if t.dict == nil {
		newID := t.alloc(node{
			character:     newChar,
			timestep:      newTimestep,
			parent:        id,
			logProbC:      logProbC,
			logProbBPrev:  logmath.NegInf,
			logProbNBPrev: logmath.NegInf,
			logProbBCur:   logmath.NegInf,
			logProbNBCur:  logmath.NegInf,
			exists:        true,
		})
		t.nodes[id].children = append(t.nodes[id].children, childEdge{label: newChar, id: newID})
		return newID, true
	}

	state := t.nodes[id].dictState
	next, ok := t.dict.Find(state, t.toArc(newChar))
	if !ok {
		if t.dict.IsFinal(state) && reset {
			t.nodes[id].dictState = t.dict.Start()
		}
		return NoNode, false
	}

	dictState := next
	if t.dict.IsFinal(next) && reset {
		dictState = t.dict.Start()
	}
	newID := t.alloc(node{
		character:     newChar,
		timestep:      newTimestep,
		parent:        id,
		logProbC:      logProbC,
		logProbBPrev:  logmath.NegInf,
		logProbNBPrev: logmath.NegInf,
		logProbBCur:   logmath.NegInf,
		logProbNBCur:  logmath.NegInf,
		exists:        true,
		dictState:     dictState,
	})
	t.nodes[id].children = append(t.nodes[id].children, childEdge{label: newChar, id: newID})
	return newID, true
}

// Collect performs a pre-order traversal from the root, appending every
// live node to the returned slice. During the visit to each live node it
// also commits the frame (spec §4.2): _cur fields shift to _prev, _cur
// fields reset to -∞, and score is refreshed.
func (t *Trie) Collect() []NodeID {
	out := make([]NodeID, 0, len(t.nodes))
	var walk func(id NodeID)
	walk = func(id NodeID) {
		n := &t.nodes[id]
		if n.exists {
			n.logProbBPrev = n.logProbBCur
			n.logProbNBPrev = n.logProbNBCur
			n.logProbBCur = logmath.NegInf
			n.logProbNBCur = logmath.NegInf
			n.score = logmath.LogSumExp(n.logProbBPrev, n.logProbNBPrev)
			out = append(out, id)
		}
		for _, e := range n.children {
			walk(e.id)
		}
	}
	walk(t.root)
	return out
}

// Remove tombstones id and, per spec §4.2, physically deletes it (and any
// now-childless tombstoned ancestors) iterating upward instead of
// recursing, per the arena design note in spec §9.
func (t *Trie) Remove(id NodeID) {
	t.nodes[id].exists = false
	cur := id
	for {
		n := t.nodes[cur]
		if len(n.children) != 0 {
			return
		}
		parent := n.parent
		label := n.character
		t.dealloc(cur)
		if parent == NoNode {
			return
		}
		pchildren := t.nodes[parent].children
		for i, e := range pchildren {
			if e.label == label {
				t.nodes[parent].children = append(pchildren[:i], pchildren[i+1:]...)
				break
			}
		}
		if t.nodes[parent].exists {
			return
		}
		cur = parent
	}
}

// Path walks id to the root and returns its labels and timesteps in
// forward (root-to-leaf) order, skipping the root itself.
func (t *Trie) Path(id NodeID) (labels, timesteps []int) {
	var chain []NodeID
	for cur := id; t.nodes[cur].character != RootLabel; cur = t.nodes[cur].parent {
		chain = append(chain, cur)
	}
	return reversedLabelsTimesteps(t, chain)
}

// PrevWord returns the sub-path of id since the last space label (or the
// root), forward order, plus the node at which the walk stopped (the space
// or root node itself, excluded from the returned path).
func (t *Trie) PrevWord(id NodeID, spaceID int) (labels, timesteps []int, stop NodeID) {
	if t.nodes[id].character == spaceID || t.nodes[id].character == RootLabel {
		return nil, nil, id
	}
	var chain []NodeID
	cur := id
	for {
		chain = append(chain, cur)
		p := t.nodes[cur].parent
		if t.nodes[p].character == spaceID || t.nodes[p].character == RootLabel {
			stop = p
			break
		}
		cur = p
	}
	labels, timesteps = reversedLabelsTimesteps(t, chain)
	return labels, timesteps, stop
}

// PrevGrapheme returns the sub-path of id since the last codepoint boundary
// (inclusive of the boundary node), forward order, plus the boundary node
// itself. isBoundary should be [github.com/MrWong99/beamctc/pkg/alphabet.Alphabet.IsCodepointBoundary],
// per spec §9's instruction to keep the boundary test centralized in Alphabet.
func (t *Trie) PrevGrapheme(id NodeID, isBoundary func(label int) bool) (labels, timesteps []int, stop NodeID) {
	if t.nodes[id].character == RootLabel {
		return nil, nil, id
	}
	var chain []NodeID
	cur := id
	for {
		chain = append(chain, cur)
		if isBoundary(t.nodes[cur].character) {
			stop = cur
			break
		}
		next := t.nodes[cur].parent
		if t.nodes[next].character == RootLabel {
			stop = cur
			break
		}
		cur = next
	}
	labels, timesteps = reversedLabelsTimesteps(t, chain)
	return labels, timesteps, stop
}

func reversedLabelsTimesteps(t *Trie, chain []NodeID) (labels, timesteps []int) {
	labels = make([]int, len(chain))
	timesteps = make([]int, len(chain))
	for i, n := range chain {
		j := len(chain) - 1 - i
		labels[j] = t.nodes[n].character
		timesteps[j] = t.nodes[n].timestep
	}
	return labels, timesteps
}

// String renders id's path as a debug transcript, e.g. "[0 1 0]". It is not
// used by any production code path; carried for debugging/tests, matching
// the DEBUG-only print helper in the original decoder.
func (t *Trie) String(id NodeID) string {
	labels, _ := t.Path(id)
	out := make([]byte, 0, len(labels)*2+2)
	out = append(out, '[')
	for i, l := range labels {
		if i > 0 {
			out = append(out, ' ')
		}
		out = appendInt(out, l)
	}
	out = append(out, ']')
	return string(out)
}

func appendInt(dst []byte, v int) []byte {
	if v < 0 {
		dst = append(dst, '-')
		v = -v
	}
	start := len(dst)
	if v == 0 {
		return append(dst, '0')
	}
	for v > 0 {
		dst = append(dst, byte('0'+v%10))
		v /= 10
	}
	// reverse the digits just appended
	for i, j := start, len(dst)-1; i < j; i, j = i+1, j-1 {
		dst[i], dst[j] = dst[j], dst[i]
	}
	return dst
}
