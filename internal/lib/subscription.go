package lib

import (
	"github.com/ethereum/go-ethereum/event"
)

// Subscription pairs a producer goroutine with the channel it writes events to.
// The producer must close the sink when it returns.
type Subscription struct {
	event.Subscription
	sink <-chan interface{}
}

func NewSubscription(producer func(quit <-chan struct{}) error, sink <-chan interface{}) *Subscription {
	return &Subscription{
		Subscription: event.NewSubscription(producer),
		sink:         sink,
	}
}

func (s *Subscription) Events() <-chan interface{} {
	return s.sink
}
