package actions

import (
	"fmt"
	"strings"
	"time"

	"supplyfuse/internal/domain"
)

// DefaultTokenThreshold is the number of shared words that makes two
// descriptions the same item.
const DefaultTokenThreshold = 3

// Snapshot is the point-in-time read of completed and decided work.
type Snapshot struct {
	Actions   []domain.CompletedAction
	Approvals []domain.DecidedApproval
}

// Index answers fuzzy membership queries over a Snapshot. Entries are tried
// in snapshot order, so the most recent match wins when the snapshot is
// sorted newest first.
type Index struct {
	threshold int
	actions   []domain.CompletedAction
	actionKey map[string]int
	approvals []domain.DecidedApproval
	approvKey map[string]int
}

func NewIndex(s Snapshot, threshold int) *Index {
	if threshold <= 0 {
		threshold = DefaultTokenThreshold
	}
	ix := &Index{
		threshold: threshold,
		actions:   append([]domain.CompletedAction(nil), s.Actions...),
		actionKey: make(map[string]int, len(s.Actions)),
		approvals: append([]domain.DecidedApproval(nil), s.Approvals...),
		approvKey: make(map[string]int, len(s.Approvals)),
	}
	for i, a := range ix.actions {
		key := a.Key
		if key == "" {
			key = domain.ActionKey(a.Description, a.AffectedSKUs)
		}
		ix.actions[i].Key = key
		if _, ok := ix.actionKey[key]; !ok {
			ix.actionKey[key] = i
		}
	}
	for i, a := range ix.approvals {
		key := a.Key
		if key == "" {
			key = domain.NormalizeKey(a.Title)
		}
		ix.approvals[i].Key = key
		if _, ok := ix.approvKey[key]; !ok {
			ix.approvKey[key] = i
		}
	}
	return ix
}

// MatchAction finds a completed action by exact key, then by description
// alone, then by containment either way, then by shared words.
func (ix *Index) MatchAction(description string, skus []string) (domain.CompletedAction, bool) {
	if ix == nil {
		return domain.CompletedAction{}, false
	}
	desc := domain.NormalizeKey(description)
	if i, ok := ix.actionKey[domain.ActionKey(description, skus)]; ok {
		return ix.actions[i], true
	}
	if i, ok := ix.actionKey[desc]; ok {
		return ix.actions[i], true
	}
	for _, a := range ix.actions {
		if ix.similar(descriptionPart(a.Key), desc) {
			return a, true
		}
	}
	return domain.CompletedAction{}, false
}

func (ix *Index) MatchApproval(title string) (domain.DecidedApproval, bool) {
	if ix == nil {
		return domain.DecidedApproval{}, false
	}
	key := domain.NormalizeKey(title)
	if i, ok := ix.approvKey[key]; ok {
		return ix.approvals[i], true
	}
	for _, a := range ix.approvals {
		if ix.similar(a.Key, key) {
			return a, true
		}
	}
	return domain.DecidedApproval{}, false
}

func (ix *Index) similar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return sharedWords(a, b) >= ix.threshold
}

func descriptionPart(key string) string {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i]
	}
	return key
}

func sharedWords(a, b string) int {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(a) {
		set[w] = struct{}{}
	}
	n := 0
	for _, w := range strings.Fields(b) {
		if _, ok := set[w]; ok {
			n++
			delete(set, w)
		}
	}
	return n
}

// noteTime renders an RFC 3339 timestamp as "2006-01-02 15:04"; unparseable
// values are shown as recorded.
func noteTime(ts string) string {
	if ts == "" {
		return "unknown date"
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func completedNote(c domain.CompletedAction) string {
	return fmt.Sprintf("Action already taken on %s by %s", noteTime(c.CompletedAt), orUnknown(c.CompletedBy))
}

func decidedNote(d domain.DecidedApproval) string {
	return fmt.Sprintf("Already %s on %s by %s", d.Status, noteTime(d.DecidedAt), orUnknown(d.DecidedBy))
}
