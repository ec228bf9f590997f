package pubsub

import (
	"sync"
)

// Broker fans published messages out to topic subscribers. Messages are
// queued per subscription until received.
type Broker struct {
	topics map[string][]*Subscription
	mu     sync.Mutex
	closed bool
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string][]*Subscription)}
}

// Subscription is one subscriber's queue on a topic.
type Subscription struct {
	broker *Broker
	topic  string
	queue  [][]byte
	mu     sync.Mutex
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Subscribe starts queueing messages published to topic.
func (b *Broker) Subscribe(topic string) *Subscription {
	sub := &Subscription{broker: b, topic: topic}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.topics[topic] = append(b.topics[topic], sub)
	}
	return sub
}

// Publish delivers msg to every current subscriber of topic and returns
// how many received it.
func (b *Broker) Publish(topic string, msg []byte) int {
	b.mu.Lock()
	subs := append([]*Subscription(nil), b.topics[topic]...)
	b.mu.Unlock()

	for _, s := range subs {
		cp := append([]byte(nil), msg...)
		s.mu.Lock()
		s.queue = append(s.queue, cp)
		s.mu.Unlock()
	}
	return len(subs)
}

// Peek returns the oldest queued message without removing it.
func (s *Subscription) Peek() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	return s.queue[0], true
}

// Receive removes and returns the oldest queued message.
func (s *Subscription) Receive() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	msg := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return msg, true
}

// Pending returns the number of queued messages.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Drop unsubscribes. It implements resource.Dropper so closing a guest
// handle ends the subscription.
func (s *Subscription) Drop() {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[s.topic]
	for i, sub := range subs {
		if sub == s {
			b.topics[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[s.topic]) == 0 {
		delete(b.topics, s.topic)
	}
}

// Subscribers returns the number of subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Close drops every subscription. Later subscriptions receive nothing.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.topics = make(map[string][]*Subscription)
	return nil
}
