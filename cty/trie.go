package cty

// prefixTrie is a read-only byte trie over plist keys. Nodes live in a slice
// so child links are indices. The last terminal node seen while walking a
// callsign is its longest known prefix.
type prefixTrie struct {
	nodes []trieNode
}

type trieNode struct {
	children map[byte]int
	key      string
}

func (t *prefixTrie) insert(key string) {
	if len(t.nodes) == 0 {
		t.nodes = append(t.nodes, trieNode{})
	}
	at := 0
	for i := 0; i < len(key); i++ {
		if t.nodes[at].children == nil {
			t.nodes[at].children = make(map[byte]int)
		}
		child, ok := t.nodes[at].children[key[i]]
		if !ok {
			child = len(t.nodes)
			t.nodes = append(t.nodes, trieNode{})
			t.nodes[at].children[key[i]] = child
		}
		at = child
	}
	t.nodes[at].key = key
}

func (t *prefixTrie) longest(call string) (string, bool) {
	if len(t.nodes) == 0 {
		return "", false
	}
	best, at := "", 0
	for i := 0; i < len(call); i++ {
		child, ok := t.nodes[at].children[call[i]]
		if !ok {
			break
		}
		at = child
		if k := t.nodes[at].key; k != "" {
			best = k
		}
	}
	return best, best != ""
}
