package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/perimetric/pagecov/pkg/cdp"
)

// responder produces the result payload (or error) for one fake command.
type responder func(params json.RawMessage) (any, error)

// fakeChannel is an in-memory cdp.Channel for tracker tests: commands are
// answered by registered responders and events are pushed synchronously.
type fakeChannel struct {
	mu         sync.Mutex
	calls      []string
	responders map[string]responder
	handlers   map[string]map[int]cdp.EventHandler
	subSeq     int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		responders: make(map[string]responder),
		handlers:   make(map[string]map[int]cdp.EventHandler),
	}
}

func (f *fakeChannel) respond(method string, r responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[method] = r
}

func (f *fakeChannel) respondValue(method string, value any) {
	f.respond(method, func(json.RawMessage) (any, error) {
		return value, nil
	})
}

func (f *fakeChannel) respondError(method string, err error) {
	f.respond(method, func(json.RawMessage) (any, error) {
		return nil, err
	})
}

func (f *fakeChannel) Call(_ context.Context, method string, params, result any) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = data
	}

	f.mu.Lock()
	f.calls = append(f.calls, method)
	r := f.responders[method]
	f.mu.Unlock()

	if r == nil {
		return nil
	}
	value, err := r(raw)
	if err != nil {
		return err
	}
	if result == nil || value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

func (f *fakeChannel) Subscribe(method string, handler cdp.EventHandler) (cdp.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subSeq++
	id := f.subSeq
	if f.handlers[method] == nil {
		f.handlers[method] = make(map[int]cdp.EventHandler)
	}
	f.handlers[method][id] = handler
	return &fakeSubscription{ch: f, method: method, id: id}, nil
}

// emit pushes an event to all subscribed handlers, synchronously, the way a
// connection read loop would.
func (f *fakeChannel) emit(method string, params any) {
	data, err := json.Marshal(params)
	if err != nil {
		panic(fmt.Sprintf("emit %s: %v", method, err))
	}
	f.mu.Lock()
	handlers := make([]cdp.EventHandler, 0, len(f.handlers[method]))
	for _, h := range f.handlers[method] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeChannel) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.calls {
		if m == method {
			n++
		}
	}
	return n
}

func (f *fakeChannel) subscriberCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[method])
}

type fakeSubscription struct {
	ch     *fakeChannel
	method string
	id     int
}

func (s *fakeSubscription) Unsubscribe() error {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	delete(s.ch.handlers[s.method], s.id)
	return nil
}
