package hashnav

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/pscheid92/hashpipe/internal/domain"
)

// Navigator is the host's view of the current position.
type Navigator interface {
	Hash() string
	SetHash(hash string)
}

// Direction selects the neighbour Step moves to.
type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// Step returns the anchor dir places away from current, wrapping at both ends.
// An unknown current anchor counts as position -1, so Next lands on the first anchor.
func Step(anchors []string, current string, dir Direction) string {
	n := len(anchors)
	if n == 0 {
		return current
	}
	idx := slices.Index(anchors, current)
	return anchors[((idx+int(dir))%n+n)%n]
}

// HashChange builds the document announcing a move to hash.
func HashChange(hash string) domain.StateDocument {
	doc, _ := domain.NewStateDocument(map[string]any{
		"action": domain.ActionHashChange,
		"value":  hash,
	})
	return doc
}

// Sync binds a Navigator to a reconciler. It reports local moves through
// DetectChange and applies remote ones through Apply, remembering the last hash
// seen either way so a remote move is never sent back. Reading or setting the
// navigator happens under the same lock as lastHash, so the Navigator must not
// call back into Sync.
type Sync struct {
	nav Navigator

	mu       sync.Mutex
	lastHash string
}

// NewSync starts from the navigator's current hash, so connecting does not
// broadcast the position the viewer happened to open on.
func NewSync(nav Navigator) *Sync {
	return &Sync{nav: nav, lastHash: nav.Hash()}
}

// DetectChange implements client.ChangeDetector.
func (s *Sync) DetectChange() (domain.StateDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := s.nav.Hash()
	if hash == s.lastHash {
		return nil, false
	}
	slog.Debug("Detected local hash change", "hash", hash)
	s.lastHash = hash
	return HashChange(hash), true
}

// Apply is the reconciler's state-change handler. Documents other than
// hashChange are ignored.
func (s *Sync) Apply(doc domain.StateDocument) {
	if doc.Action() != domain.ActionHashChange {
		return
	}
	hash := doc.String("value")

	s.mu.Lock()
	defer s.mu.Unlock()

	// A check in between would report the old hash as a local move.
	s.lastHash = hash
	slog.Debug("Changing hash", "hash", hash)
	s.nav.SetHash(hash)
}

// LastHash returns the hash last applied or reported.
func (s *Sync) LastHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}
