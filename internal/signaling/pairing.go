package signaling

import "sync"

// PairTable records which client is in a call with which. A pairing {A,B} is
// stored as two directed entries, one per side, so the partner lookup is O(1)
// from either side.
//
// Invariants: each identity keys at most one entry, and entries are always
// symmetric, so PartnerOf(a) == b implies PartnerOf(b) == a. Both are
// maintained atomically under one lock.
type PairTable struct {
	mu      sync.Mutex
	partner map[string]string
}

func NewPairTable() *PairTable {
	return &PairTable{
		partner: make(map[string]string),
	}
}

// Pair links a and b, last-pairing-wins. Any existing pairing of either side
// is removed first so no dangling one-sided entry can survive; the identities
// whose calls were torn down by the overwrite are returned so the caller can
// notify them.
func (t *PairTable) Pair(a, b string) (displaced []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range [2]string{a, b} {
		old, ok := t.partner[id]
		if !ok {
			continue
		}
		delete(t.partner, id)
		delete(t.partner, old)
		if old != a && old != b {
			displaced = append(displaced, old)
		}
	}

	t.partner[a] = b
	t.partner[b] = a
	return displaced
}

func (t *PairTable) PartnerOf(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.partner[id]
	return p, ok
}

// Unpair removes id's pairing and its partner's reverse entry in one atomic
// step, returning the partner so the caller can notify it. Unpairing an
// unpaired identity is a no-op; this is what makes concurrent hangup and
// disconnect teardown exactly-once: only the first caller sees the partner.
func (t *PairTable) Unpair(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partner[id]
	if !ok {
		return "", false
	}
	delete(t.partner, id)
	delete(t.partner, p)
	return p, true
}

// Len reports the number of directed entries.
func (t *PairTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.partner)
}
