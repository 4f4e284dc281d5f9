package bus_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/housecat-inc/qtex/pkg/bus"
)

func drain(s *bus.Subscription) []bus.Notification {
	var out []bus.Notification
	for {
		select {
		case n := <-s.C():
			out = append(out, n)
		default:
			return out
		}
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	a := assert.New(t)
	b := bus.New(bus.DefaultBuffer, nil)

	a.NotPanics(func() { b.Publish("/p/output.pdf") })

	s := b.Subscribe()
	defer s.Close()
	a.Empty(drain(s))
}

func TestSubscriberReceivesInOrder(t *testing.T) {
	a := assert.New(t)
	b := bus.New(bus.DefaultBuffer, nil)

	b.Publish("before")
	s := b.Subscribe()
	defer s.Close()

	b.Publish("one")
	b.Publish("two")
	b.Publish("three")

	a.Equal([]bus.Notification{"one", "two", "three"}, drain(s))
}

func TestSubscribersAreIndependent(t *testing.T) {
	a := assert.New(t)
	b := bus.New(bus.DefaultBuffer, nil)

	first := b.Subscribe()
	defer first.Close()
	b.Publish("a")

	second := b.Subscribe()
	defer second.Close()
	b.Publish("b")

	a.Equal([]bus.Notification{"a", "b"}, drain(first))
	a.Equal([]bus.Notification{"b"}, drain(second))
}

func TestFullBufferDropsOldest(t *testing.T) {
	tests := []struct {
		_name     string
		buffer    int
		published int
		out       []bus.Notification
	}{
		{
			_name:     "within capacity",
			buffer:    4,
			published: 3,
			out:       []bus.Notification{"n0", "n1", "n2"},
		},
		{
			_name:     "overflow keeps newest",
			buffer:    4,
			published: 7,
			out:       []bus.Notification{"n3", "n4", "n5", "n6"},
		},
		{
			_name:     "single slot",
			buffer:    1,
			published: 5,
			out:       []bus.Notification{"n4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt._name, func(t *testing.T) {
			a := assert.New(t)
			b := bus.New(tt.buffer, nil)
			s := b.Subscribe()
			defer s.Close()

			for i := 0; i < tt.published; i++ {
				b.Publish(bus.Notification(fmt.Sprintf("n%d", i)))
			}
			a.Equal(tt.out, drain(s))
		})
	}
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	a := assert.New(t)
	b := bus.New(2, nil)
	slow := b.Subscribe()
	defer slow.Close()
	fast := b.Subscribe()
	defer fast.Close()

	var got []bus.Notification
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := range fast.C() {
			got = append(got, n)
			if n == "last" {
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish("x")
		}
		b.Publish("last")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked")
	}
	wg.Wait()
	a.Equal(bus.Notification("last"), got[len(got)-1])
	a.Len(drain(slow), 2)
}

func TestCloseEndsSequence(t *testing.T) {
	a := assert.New(t)
	b := bus.New(bus.DefaultBuffer, nil)
	s := b.Subscribe()
	a.Equal(1, b.Len())

	s.Close()
	s.Close()
	a.Equal(0, b.Len())

	_, ok := <-s.C()
	a.False(ok)
	a.NotPanics(func() { b.Publish("after close") })
}
