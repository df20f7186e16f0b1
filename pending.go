package lobby

import (
	"sync"
)

// pendingAcks is the client-side collection of requests waiting for their
// acknowledgement, keyed by ack token. Each waiter is resolved at most
// once; a connection teardown fails all of them at once.
type pendingAcks struct {
	mu      sync.Mutex
	waiters map[string]chan Message
}

func newPendingAcks() *pendingAcks {
	return &pendingAcks{
		waiters: make(map[string]chan Message),
	}
}

// add registers a waiter for the given request token.
func (p *pendingAcks) add(token string) <-chan Message {
	ch := make(chan Message, 1)

	p.mu.Lock()
	p.waiters[token] = ch
	p.mu.Unlock()

	return ch
}

// remove forgets a waiter, typically after its reply arrived or its
// context expired. A late reply for a removed token is dropped.
func (p *pendingAcks) remove(token string) {
	p.mu.Lock()
	delete(p.waiters, token)
	p.mu.Unlock()
}

// resolve hands a reply to its waiter, matching the confirmation-prefixed
// token back to the request's one. It reports whether a waiter existed.
func (p *pendingAcks) resolve(msg Message) bool {
	token := msg.ack
	if len(token) > 0 && token[0] == ackConfirmationPrefix {
		token = token[1:]
	}

	p.mu.Lock()
	ch, ok := p.waiters[token]
	if ok {
		delete(p.waiters, token)
	}
	p.mu.Unlock()

	if ok {
		ch <- msg
	}

	return ok
}

// failAll resolves every outstanding waiter with the given error.
func (p *pendingAcks) failAll(err error) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[string]chan Message)
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- Message{Err: err, isError: true}
	}
}
