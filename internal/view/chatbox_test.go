package view

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-widget/internal/domain"
)

func TestAppend_ReturnsHandleAndNotifies(t *testing.T) {
	var changes []Change
	b := NewChatBox(WithObserver(func(c Change) { changes = append(changes, c) }))

	n := b.Append(domain.SenderUser, "Hello", domain.StyleUser)
	require.NotNil(t, n)
	require.Equal(t, []Change{{Node: n}}, changes)
	require.Equal(t, domain.Message{Sender: "You", Text: "Hello", StyleClass: "user"}, n.Message())
	require.Equal(t, 1, b.Len())
}

func TestAppend_KeepsDisplayOrder(t *testing.T) {
	b := NewChatBox()
	first := b.Append(domain.SenderUser, "one", domain.StyleUser)
	second := b.Append(domain.SenderBot, "two", domain.StyleBot)

	nodes := b.Nodes()
	require.Len(t, nodes, 2)
	require.Same(t, first, nodes[0])
	require.Same(t, second, nodes[1])
	require.NotEqual(t, first.ID(), second.ID())
}

func TestRemove(t *testing.T) {
	var changes []Change
	b := NewChatBox()
	user := b.Append(domain.SenderUser, "hi", domain.StyleUser)
	loading := b.Append(domain.SenderBot, domain.LoadingText, domain.StyleLoading)
	b.SetObserver(func(c Change) { changes = append(changes, c) })

	require.True(t, b.Remove(loading))
	require.Equal(t, []Change{{Node: loading, Removed: true}}, changes)
	require.Equal(t, []domain.Message{user.Message()}, b.Messages())

	require.False(t, b.Remove(loading), "second removal is a no-op")
	require.False(t, b.Remove(nil))
	require.Len(t, changes, 1)
}

func TestNodes_IsSnapshot(t *testing.T) {
	b := NewChatBox()
	b.Append(domain.SenderUser, "a", domain.StyleUser)
	snap := b.Nodes()
	b.Append(domain.SenderUser, "b", domain.StyleUser)
	require.Len(t, snap, 1)
	require.Equal(t, 2, b.Len())
}

func TestAppend_Concurrent(t *testing.T) {
	b := NewChatBox()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := b.Append(domain.SenderBot, "x", domain.StyleBot)
			if n.ID()%2 == 0 {
				b.Remove(n)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 25, b.Len())
}
