package settlement

import (
	"context"
	"errors"
	"sync"
)

// ErrNoReceiver is returned for a receiver identity with no client.
var ErrNoReceiver = errors.New("no receiver registered")

// Receiver is an external service notified of incoming transfers. It returns
// the JSON encoded decimal string of the amount it did not use.
type Receiver interface {
	OnTransfer(ctx context.Context, notice Notice) ([]byte, error)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, notice Notice) ([]byte, error)

// OnTransfer implements Receiver.
func (f ReceiverFunc) OnTransfer(ctx context.Context, notice Notice) ([]byte, error) {
	return f(ctx, notice)
}

// Directory maps receiver identities to their clients.
type Directory struct {
	mu        sync.RWMutex
	receivers map[string]Receiver
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{receivers: make(map[string]Receiver)}
}

// Register binds id to r, replacing any earlier binding.
func (d *Directory) Register(id string, r Receiver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.receivers[id] = r
}

// Lookup returns the client for id.
func (d *Directory) Lookup(id string) (Receiver, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.receivers[id]
	return r, ok
}

// Call notifies the receiver bound to id. An unknown id fails with
// ErrNoReceiver, which resolves as a full refund.
func (d *Directory) Call(ctx context.Context, id string, notice Notice) ([]byte, error) {
	r, ok := d.Lookup(id)
	if !ok {
		return nil, ErrNoReceiver
	}
	return r.OnTransfer(ctx, notice)
}

// States reports the circuit state of every receiver that tracks one.
func (d *Directory) States() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string)
	for id, r := range d.receivers {
		if s, ok := r.(interface{ State() string }); ok {
			out[id] = s.State()
		}
	}
	return out
}
