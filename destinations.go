package causelog

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is how many messages a Destinations registry keeps
// before its first destination is added.
const DefaultBufferSize = 1000

// Destination receives every frozen, serialized message. Implementations must
// not modify msg. Returned errors and panics are isolated per destination.
type Destination interface {
	Send(msg Fields) error
}

// DestinationFunc adapts a function to Destination.
type DestinationFunc func(msg Fields) error

// Send calls f(msg).
func (f DestinationFunc) Send(msg Fields) error {
	return f(msg)
}

// DestinationID identifies a destination added to a Destinations registry.
type DestinationID uint64

type destinationEntry struct {
	dest Destination
	id   DestinationID
}

// Destinations is an ordered registry of destinations plus global fields
// merged into every message.
//
// Until the first destination is added, sent messages are buffered (the most
// recent DefaultBufferSize are kept) and replayed to the first destinations
// added.
//
// Thread-safety: safe for concurrent use.
type Destinations struct {
	mu           sync.RWMutex
	entries      []destinationEntry
	globalFields Fields
	buffer       []Fields
	anyAdded     bool
	nextID       atomic.Uint64
}

// NewDestinations creates an empty registry.
func NewDestinations() *Destinations {
	return &Destinations{globalFields: Fields{}}
}

// Add appends destinations in order and returns their ids. If these are the
// first destinations ever added, buffered messages are replayed to them; the
// returned error aggregates any failures during that replay.
func (d *Destinations) Add(dests ...Destination) ([]DestinationID, error) {
	ids := make([]DestinationID, 0, len(dests))

	d.mu.Lock()
	var replay []Fields
	if !d.anyAdded && len(dests) > 0 {
		d.anyAdded = true
		replay = d.buffer
		d.buffer = nil
	}
	for _, dest := range dests {
		if dest == nil {
			continue
		}
		id := DestinationID(d.nextID.Add(1))
		d.entries = append(d.entries, destinationEntry{dest: dest, id: id})
		ids = append(ids, id)
	}
	d.mu.Unlock()

	var failed []*DestinationError
	for _, msg := range replay {
		if err := d.Send(msg); err != nil {
			if se, ok := err.(*SendError); ok {
				failed = append(failed, se.Errors...)
			}
		}
	}
	if len(failed) > 0 {
		return ids, &SendError{Errors: failed}
	}
	return ids, nil
}

// Remove removes the destination with the given id.
func (d *Destinations) Remove(id DestinationID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Preserve order
	for i, e := range d.entries {
		if e.id == id {
			copy(d.entries[i:], d.entries[i+1:])
			d.entries[len(d.entries)-1] = destinationEntry{}
			d.entries = d.entries[:len(d.entries)-1]
			return nil
		}
	}
	return fmt.Errorf("destination %d not found", id)
}

// Len returns the number of registered destinations.
func (d *Destinations) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// AddGlobalFields merges fields into every message sent from now on.
//
// The merge happens after serialization, so schemas never see global fields
// and a closed schema rejects them when a written trace is checked later.
// `causelog validate --global-fields` names them so they are skipped.
func (d *Destinations) AddGlobalFields(fields Fields) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range fields {
		d.globalFields[k] = v
	}
}

// Send delivers a copy of msg, merged with the global fields, to every
// destination. Every destination is attempted; if any fail, a single
// *SendError listing each failure is returned.
func (d *Destinations) Send(msg Fields) error {
	d.mu.Lock()
	out := msg.Merge(d.globalFields)
	if !d.anyAdded {
		d.buffer = append(d.buffer, out)
		if len(d.buffer) > DefaultBufferSize {
			d.buffer = d.buffer[len(d.buffer)-DefaultBufferSize:]
		}
		d.mu.Unlock()
		return nil
	}
	entries := make([]destinationEntry, len(d.entries))
	copy(entries, d.entries)
	d.mu.Unlock()

	var failed []*DestinationError
	for _, e := range entries {
		if err := safeSend(e.dest, out); err != nil {
			failed = append(failed, &DestinationError{ID: e.id, Err: err})
		}
	}
	if len(failed) > 0 {
		return &SendError{Errors: failed}
	}
	return nil
}

func safeSend(dest Destination, msg Fields) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return dest.Send(msg)
}

// WriterDestination writes each message as one line of JSON.
//
// Thread-safety: safe for concurrent use.
type WriterDestination struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterDestination creates a JSON-lines destination writing to w.
func NewWriterDestination(w io.Writer) *WriterDestination {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &WriterDestination{enc: enc}
}

// Send encodes msg followed by a newline.
func (w *WriterDestination) Send(msg Fields) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(msg)
}
