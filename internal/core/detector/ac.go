package detector

import "iter"

// trie is an Aho-Corasick automaton over ASCII-folded bytes. Folding keeps byte offsets
// aligned with the original content, so a hit's start is end minus the literal length
type trie struct {
	edges []map[byte]int32
	fail  []int32
	hits  [][]int32 // literal ids ending here, including those reachable by fail links
}

func newTrie() *trie {
	return &trie{edges: []map[byte]int32{{}}, fail: []int32{0}, hits: [][]int32{nil}}
}

func (t *trie) add(lit []byte, id int) {
	if len(lit) == 0 {
		return
	}
	var at int32
	for _, b := range lit {
		next, ok := t.edges[at][b]
		if !ok {
			next = int32(len(t.edges))
			t.edges[at][b] = next
			t.edges = append(t.edges, map[byte]int32{})
			t.fail = append(t.fail, 0)
			t.hits = append(t.hits, nil)
		}
		at = next
	}
	t.hits[at] = append(t.hits[at], int32(id))
}

// step follows b from state, falling back along fail links
func (t *trie) step(state int32, b byte) int32 {
	for {
		if next, ok := t.edges[state][b]; ok {
			return next
		}
		if state == 0 {
			return 0
		}
		state = t.fail[state]
	}
}

// compile wires fail links breadth first. Call once after the last add
func (t *trie) compile() {
	queue := make([]int32, 0, len(t.edges))
	for _, child := range t.edges[0] {
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for b, child := range t.edges[parent] {
			if parent != 0 {
				t.fail[child] = t.step(t.fail[parent], b)
			}
			t.hits[child] = append(t.hits[child], t.hits[t.fail[child]]...)
			queue = append(queue, child)
		}
	}
}

// matches yields (end offset, literal id) for every occurrence in text, in end order
func (t *trie) matches(text []byte) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		var state int32
		for i, b := range text {
			state = t.step(state, b)
			for _, id := range t.hits[state] {
				if !yield(i+1, int(id)) {
					return
				}
			}
		}
	}
}

// foldASCII lowercases A-Z and nothing else
func foldASCII(s string) []byte {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c | 0x20
		}
	}
	return out
}
