package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testEvent string

func (e testEvent) EventType() string { return string(e) }

func TestFeedFiltersByPrefix(t *testing.T) {
	feed := NewFeed()
	market := feed.Subscribe("market.", 4)
	all := feed.Subscribe("", 4)
	defer market.Unsubscribe()
	defer all.Unsubscribe()

	feed.Emit(testEvent("market.offer.created"))
	feed.Emit(testEvent("token.transfer"))

	require.Len(t, market.Events(), 1)
	require.Len(t, all.Events(), 2)
	require.Equal(t, testEvent("market.offer.created"), <-market.Events())
}

func TestFeedDropsWhenBufferFull(t *testing.T) {
	feed := NewFeed()
	sub := feed.Subscribe("", 1)
	feed.Emit(testEvent("a"))
	feed.Emit(testEvent("b"))
	require.Equal(t, uint64(1), sub.Dropped())

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.Equal(t, 0, feed.Len())
	_, open := <-sub.Events()
	require.True(t, open, "buffered event is still readable after close")
	_, open = <-sub.Events()
	require.False(t, open)
}

func TestMultiEmitterSkipsNil(t *testing.T) {
	feed := NewFeed()
	sub := feed.Subscribe("", 2)
	MultiEmitter{nil, NoopEmitter{}, feed}.Emit(testEvent("x"))
	require.Len(t, sub.Events(), 1)
}
