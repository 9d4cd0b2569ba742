package view

import (
	"sync"

	"chat-widget/internal/domain"
)

// Node is a rendered entry in the chat box. The node is the only record of
// its message; callers keep the handle to remove transient entries later.
type Node struct {
	id  uint64
	msg domain.Message
}

// ID is unique within the chat box that created the node.
func (n *Node) ID() uint64 { return n.id }

func (n *Node) Message() domain.Message { return n.msg }

// Change describes one mutation of a chat box.
type Change struct {
	Node    *Node
	Removed bool
}

// ChatBox is the scrollable conversation surface. It is safe for concurrent
// use; replies of overlapping sends are appended from their own goroutines.
type ChatBox struct {
	mu       sync.Mutex
	nodes    []*Node
	nextID   uint64
	observer func(Change)
}

type Option func(*ChatBox)

// WithObserver registers fn to be called after every change, outside the
// box's lock. Observers use it to redraw and scroll so that the newest entry
// is visible.
func WithObserver(fn func(Change)) Option {
	return func(b *ChatBox) {
		b.observer = fn
	}
}

func NewChatBox(opts ...Option) *ChatBox {
	b := &ChatBox{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetObserver replaces the change observer.
func (b *ChatBox) SetObserver(fn func(Change)) {
	b.mu.Lock()
	b.observer = fn
	b.mu.Unlock()
}

// Append adds a node at the bottom of the box and returns its handle.
func (b *ChatBox) Append(sender, text, styleClass string) *Node {
	b.mu.Lock()
	b.nextID++
	n := &Node{
		id:  b.nextID,
		msg: domain.Message{Sender: sender, Text: text, StyleClass: styleClass},
	}
	b.nodes = append(b.nodes, n)
	observer := b.observer
	b.mu.Unlock()

	if observer != nil {
		observer(Change{Node: n})
	}
	return n
}

// Remove deletes n from the box. It reports false when n is nil or not
// present.
func (b *ChatBox) Remove(n *Node) bool {
	if n == nil {
		return false
	}
	b.mu.Lock()
	idx := -1
	for i, cur := range b.nodes {
		if cur == n {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return false
	}
	b.nodes = append(b.nodes[:idx], b.nodes[idx+1:]...)
	observer := b.observer
	b.mu.Unlock()

	if observer != nil {
		observer(Change{Node: n, Removed: true})
	}
	return true
}

// Nodes returns a snapshot of the box in display order.
func (b *ChatBox) Nodes() []*Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Node, len(b.nodes))
	copy(out, b.nodes)
	return out
}

func (b *ChatBox) Messages() []domain.Message {
	nodes := b.Nodes()
	out := make([]domain.Message, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.msg)
	}
	return out
}

func (b *ChatBox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nodes)
}
