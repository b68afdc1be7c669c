// Package behavior implements a bounded-order Markov model over per-user
// behavior token streams. The model only ever counts observed transitions;
// it never stores raw event payloads.
package behavior

import (
	"strings"
	"sync"

	dErrors "zkattend/pkg/domain-errors"
)

// DefaultOrder matches the production configuration: transitions condition
// on the two most recent tokens.
const DefaultOrder = 2

// windowSep joins window tokens into a map key. Tokens are short labels
// like "Web3_2" and never contain the separator.
const windowSep = "|"

// Model is a per-user transition counter. Safe for concurrent use; a single
// RWMutex guards all users, which is fine at sub-millisecond update cost.
type Model struct {
	mu    sync.RWMutex
	order int
	users map[string]*userChain
}

type userChain struct {
	history     []string
	transitions map[string]*successors
}

// successors tracks next-token counts for one window plus first-seen order
// so prediction ties break deterministically.
type successors struct {
	counts map[string]int
	seen   []string
}

// New creates a Model of the given order. Non-positive orders fall back to
// DefaultOrder.
func New(order int) *Model {
	if order <= 0 {
		order = DefaultOrder
	}
	return &Model{order: order, users: make(map[string]*userChain)}
}

// Order returns the window length the model conditions on.
func (m *Model) Order() int { return m.order }

// AddBehavior appends observed tokens to the user's stream and counts every
// completed (window, next) transition. Streams shorter than order+1 tokens
// accumulate silently until enough history exists.
func (m *Model) AddBehavior(user string, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	chain := m.users[user]
	if chain == nil {
		chain = &userChain{transitions: make(map[string]*successors)}
		m.users[user] = chain
	}
	for _, token := range tokens {
		if len(chain.history) >= m.order {
			window := chain.history[len(chain.history)-m.order:]
			chain.record(strings.Join(window, windowSep), token)
		}
		chain.history = append(chain.history, token)
	}
}

func (c *userChain) record(window, next string) {
	succ := c.transitions[window]
	if succ == nil {
		succ = &successors{counts: make(map[string]int)}
		c.transitions[window] = succ
	}
	if _, ok := succ.counts[next]; !ok {
		succ.seen = append(succ.seen, next)
	}
	succ.counts[next]++
}

// PredictNext returns the most likely next token after the given recent
// window, or ok=false if that window was never observed for the user. The
// window must be at least order tokens long; only the trailing order tokens
// condition the prediction. Unknown users are an empty model, not an error.
func (m *Model) PredictNext(user string, recent []string) (string, bool, error) {
	if len(recent) < m.order {
		return "", false, dErrors.Newf(dErrors.CodeInvalidInput,
			"prediction window needs at least %d tokens, got %d", m.order, len(recent))
	}
	window := strings.Join(recent[len(recent)-m.order:], windowSep)

	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.users[user]
	if chain == nil {
		return "", false, nil
	}
	succ := chain.transitions[window]
	if succ == nil {
		return "", false, nil
	}

	best := ""
	bestCount := 0
	for _, token := range succ.seen {
		if succ.counts[token] > bestCount {
			best = token
			bestCount = succ.counts[token]
		}
	}
	return best, best != "", nil
}

// Export returns a read-only snapshot of the user's window→next→count table,
// keyed the way the model stores windows. Unknown users export empty tables.
func (m *Model) Export(user string) map[string]map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]int)
	chain := m.users[user]
	if chain == nil {
		return out
	}
	for window, succ := range chain.transitions {
		row := make(map[string]int, len(succ.counts))
		for token, count := range succ.counts {
			row[token] = count
		}
		out[window] = row
	}
	return out
}

// Reset discards the user's accumulated stream and counts. Only an explicit
// export/reset flow may clear a model.
func (m *Model) Reset(user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, user)
}
