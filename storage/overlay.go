package storage

import "sync"

// Overlay buffers writes on top of a base database so a batch of state
// changes can be applied all at once or discarded entirely. Reads see the
// pending writes first and fall through to the base. An overlay that is
// never committed leaves the base untouched.
type Overlay struct {
	mu      sync.RWMutex
	base    Database
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewOverlay wraps base with an empty write buffer.
func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.deleted, k)
	o.pending[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	k := string(key)
	if _, gone := o.deleted[k]; gone {
		return nil, ErrNotFound
	}
	if value, ok := o.pending[k]; ok {
		return append([]byte(nil), value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	k := string(key)
	if _, gone := o.deleted[k]; gone {
		return false, nil
	}
	if _, ok := o.pending[k]; ok {
		return true, nil
	}
	return o.base.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.pending, k)
	o.deleted[k] = struct{}{}
	return nil
}

// Close satisfies the Database interface. The base remains open.
func (o *Overlay) Close() {}

// Commit flushes the buffered writes and deletions to the base database and
// resets the overlay so it can be reused for the next batch.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, value := range o.pending {
		if err := o.base.Put([]byte(k), value); err != nil {
			return err
		}
	}
	for k := range o.deleted {
		if err := o.base.Delete([]byte(k)); err != nil {
			return err
		}
	}
	o.pending = make(map[string][]byte)
	o.deleted = make(map[string]struct{})
	return nil
}

// Discard drops all buffered writes without touching the base.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = make(map[string][]byte)
	o.deleted = make(map[string]struct{})
}
