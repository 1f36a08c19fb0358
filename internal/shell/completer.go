package shell

import (
	"sort"
	"strings"

	"github.com/WebFirstLanguage/lanchat/pkg/identity"
	"github.com/WebFirstLanguage/lanchat/pkg/node"
)

// Suggestion is one completion candidate. Text is always a peer id; Meta is
// the peer's name in parentheses when known.
type Suggestion struct {
	Text string
	Meta string
}

// Complete returns the peers matching word: ids starting with word, then ids
// whose name starts with word. Each id appears once.
func Complete(src node.Completion, word string) []Suggestion {
	seen := make(map[identity.PeerID]bool)
	var out []Suggestion

	add := func(id identity.PeerID) {
		if seen[id] {
			return
		}
		seen[id] = true

		meta := ""
		if name, ok := src.Names[id]; ok && name != "" {
			meta = "(" + name + ")"
		}
		out = append(out, Suggestion{Text: id.String(), Meta: meta})
	}

	ids := append([]identity.PeerID(nil), src.IDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if strings.HasPrefix(string(id), word) {
			add(id)
		}
	}

	named := make([]identity.PeerID, 0, len(src.Names))
	for id, name := range src.Names {
		if word != "" && strings.HasPrefix(name, word) {
			named = append(named, id)
		}
	}
	sort.Slice(named, func(i, j int) bool { return named[i] < named[j] })
	for _, id := range named {
		add(id)
	}

	return out
}
