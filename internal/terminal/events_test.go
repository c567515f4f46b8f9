package terminal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func outputEvent(s string) func(Callbacks) {
	return func(cb Callbacks) { cb.Output([]byte(s)) }
}

func TestDispatcherDeliversInOrderThenFinishes(t *testing.T) {
	var got []string
	d := newDispatcher(Callbacks{Output: func(b []byte) { got = append(got, string(b)) }})

	for _, s := range []string{"a", "b", "c"} {
		d.push(outputEvent(s))
	}
	d.finish()
	d.push(outputEvent("late"))

	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDispatcherDiscardDropsQueued(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var got []string
	d := newDispatcher(Callbacks{Output: func(b []byte) {
		if len(got) == 0 {
			close(entered)
			<-unblock
		}
		got = append(got, string(b))
	}})

	d.push(outputEvent("first"))
	<-entered
	d.push(outputEvent("second"))
	d.push(outputEvent("third"))
	d.discard()
	close(unblock)

	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.Equal(t, []string{"first"}, got)
}
