package store

import (
	"bytes"
	"sort"

	"github.com/chrisrueger/equinox/common/util"
)

// An Entry is a single value in the tree.
type Entry struct {
	// Value holds the plaintext, or the ciphertext if Encrypted
	// is set.
	Value []byte

	// Encrypted marks Value as ciphertext.
	Encrypted bool

	// Provider is the ID of the cipher that encrypted Value.
	Provider string

	// PasswordProvider is the ID of the password provider whose
	// password encrypted Value; empty selects the default
	// provider.
	PasswordProvider string
}

func (e Entry) clone() Entry {
	e.Value = util.Dup(e.Value)
	if e.Value == nil {
		e.Value = []byte{}
	}
	return e
}

// Equal reports whether e and other are identical, byte for byte.
func (e Entry) Equal(other Entry) bool {
	return e.Encrypted == other.Encrypted &&
		e.Provider == other.Provider &&
		e.PasswordProvider == other.PasswordProvider &&
		bytes.Equal(e.Value, other.Value)
}

type node struct {
	entries  map[string]Entry
	children map[string]*node
}

func newNode() *node {
	return &node{
		entries:  map[string]Entry{},
		children: map[string]*node{},
	}
}

// A Tree is the in-memory hierarchy of nodes. The root node always
// exists. A Tree is not safe for concurrent use; Store serialises
// access to its tree.
type Tree struct {
	root *node
}

// NewTree returns a tree holding only an empty root.
func NewTree() *Tree {
	return &Tree{root: newNode()}
}

// find returns the node at path, or nil if it or an ancestor is
// missing. Invalid paths name no node.
func (t *Tree) find(path string) *node {
	names, err := splitPath(path)
	if err != nil {
		return nil
	}

	n := t.root
	for _, name := range names {
		if n = n.children[name]; n == nil {
			return nil
		}
	}
	return n
}

// create returns the node at path, creating it and any missing
// ancestors. It reports whether any node was created.
func (t *Tree) create(path string) (*node, bool, error) {
	names, err := splitPath(path)
	if err != nil {
		return nil, false, err
	}

	var created bool
	n := t.root
	for _, name := range names {
		child, ok := n.children[name]
		if !ok {
			child = newNode()
			n.children[name] = child
			created = true
		}
		n = child
	}
	return n, created, nil
}

// Get returns a copy of the entry stored under key at path.
func (t *Tree) Get(path, key string) (Entry, bool) {
	n := t.find(path)
	if n == nil {
		return Entry{}, false
	}

	e, ok := n.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Put stores a copy of e under key at path, creating the node and
// any missing ancestors.
func (t *Tree) Put(path, key string, e Entry) error {
	n, _, err := t.create(path)
	if err != nil {
		return err
	}

	if old, ok := n.entries[key]; ok {
		util.Zero(old.Value)
	}
	n.entries[key] = e.clone()
	return nil
}

// Remove deletes key at path, reporting whether it was present.
func (t *Tree) Remove(path, key string) bool {
	n := t.find(path)
	if n == nil {
		return false
	}

	e, ok := n.entries[key]
	if !ok {
		return false
	}
	util.Zero(e.Value)
	delete(n.entries, key)
	return true
}

// CreateNode creates the node at path and any missing ancestors. It
// reports whether a node was created.
func (t *Tree) CreateNode(path string) (bool, error) {
	_, created, err := t.create(path)
	return created, err
}

// NodeExists reports whether the node at path exists.
func (t *Tree) NodeExists(path string) bool {
	return t.find(path) != nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Keys lists the keys at path in sorted order.
func (t *Tree) Keys(path string) ([]string, bool) {
	n := t.find(path)
	if n == nil {
		return nil, false
	}
	return sortedKeys(n.entries), true
}

// Children lists the names of the children of the node at path in
// sorted order.
func (t *Tree) Children(path string) ([]string, bool) {
	n := t.find(path)
	if n == nil {
		return nil, false
	}
	return sortedKeys(n.children), true
}

// RemoveNode deletes the node at path with all its descendants,
// reporting whether it existed. Removing the root empties the tree
// but keeps the root itself.
func (t *Tree) RemoveNode(path string) bool {
	names, err := splitPath(path)
	if err != nil {
		return false
	}

	if len(names) == 0 {
		zeroNode(t.root)
		t.root = newNode()
		return true
	}

	parent := t.find(pathOf(names[:len(names)-1]))
	if parent == nil {
		return false
	}

	name := names[len(names)-1]
	n, ok := parent.children[name]
	if !ok {
		return false
	}
	zeroNode(n)
	delete(parent.children, name)
	return true
}

func pathOf(names []string) string {
	path := RootPath
	for _, name := range names {
		path = JoinPath(path, name)
	}
	return path
}

func zeroNode(n *node) {
	for _, e := range n.entries {
		util.Zero(e.Value)
	}
	for _, child := range n.children {
		zeroNode(child)
	}
}

// Zero wipes every value in the tree.
func (t *Tree) Zero() {
	zeroNode(t.root)
}

// walk visits every node in pre-order, children in name order, so a
// parent is always visited before its descendants.
func (t *Tree) walk(fn func(path string, n *node) error) error {
	var visit func(path string, n *node) error
	visit = func(path string, n *node) error {
		if err := fn(path, n); err != nil {
			return err
		}
		for _, name := range sortedKeys(n.children) {
			if err := visit(JoinPath(path, name), n.children[name]); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(RootPath, t.root)
}

// Walk calls fn for every node in pre-order with the node's keys in
// sorted order.
func (t *Tree) Walk(fn func(path string, keys []string)) {
	t.walk(func(path string, n *node) error {
		fn(path, sortedKeys(n.entries))
		return nil
	})
}

// NodeCount returns the number of nodes, including the root.
func (t *Tree) NodeCount() int {
	var count int
	t.walk(func(string, *node) error {
		count++
		return nil
	})
	return count
}

func cloneNode(n *node) *node {
	out := newNode()
	for k, e := range n.entries {
		out.entries[k] = e.clone()
	}
	for name, child := range n.children {
		out.children[name] = cloneNode(child)
	}
	return out
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	return &Tree{root: cloneNode(t.root)}
}

func equalNode(a, b *node) bool {
	if len(a.entries) != len(b.entries) || len(a.children) != len(b.children) {
		return false
	}
	for k, e := range a.entries {
		other, ok := b.entries[k]
		if !ok || !e.Equal(other) {
			return false
		}
	}
	for name, child := range a.children {
		other, ok := b.children[name]
		if !ok || !equalNode(child, other) {
			return false
		}
	}
	return true
}

// Equal reports whether t and other hold the same nodes and entries.
func (t *Tree) Equal(other *Tree) bool {
	return equalNode(t.root, other.root)
}
