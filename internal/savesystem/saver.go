// internal/savesystem/saver.go
package savesystem

import (
	"sort"
	"sync"
)

// Saver is any participant that can record and restore its own state as an
// opaque string.
type Saver interface {
	Key() string
	RecordData() string
	ApplyData(data string)
	OnBeforeSceneChange()
}

// CrossSceneSaver is implemented by savers whose data survives scene changes.
type CrossSceneSaver interface {
	SaveAcrossSceneChanges() bool
}

// Registry tracks the savers that are currently live. It is empty when
// created and emptied again by Clear.
type Registry struct {
	mu     sync.RWMutex
	savers map[string]Saver
	seq    map[string]uint64
	next   uint64
}

// NewRegistry 创建存档器注册表
func NewRegistry() *Registry {
	return &Registry{
		savers: make(map[string]Saver),
		seq:    make(map[string]uint64),
	}
}

// Register adds a saver under its key, replacing a saver with the same key.
func (r *Registry) Register(saver Saver) {
	if saver == nil || saver.Key() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := saver.Key()
	if _, exists := r.savers[key]; !exists {
		r.next++
		r.seq[key] = r.next
	}
	r.savers[key] = saver
}

// Unregister removes a saver. Unknown or repeated calls are ignored.
func (r *Registry) Unregister(saver Saver) {
	if saver == nil {
		return
	}
	r.UnregisterKey(saver.Key())
}

// UnregisterKey removes the saver registered under key, if any.
func (r *Registry) UnregisterKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.savers, key)
	delete(r.seq, key)
}

// Get returns the saver registered under key.
func (r *Registry) Get(key string) (Saver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.savers[key]
	return s, ok
}

// Savers returns the live savers in registration order.
func (r *Registry) Savers() []Saver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Saver, 0, len(r.savers))
	for _, s := range r.savers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return r.seq[out[i].Key()] < r.seq[out[j].Key()]
	})
	return out
}

// Len returns the number of live savers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.savers)
}

// Clear unregisters every saver.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savers = make(map[string]Saver)
	r.seq = make(map[string]uint64)
}

// BlobSaver is a saver whose state is a string set from outside, used for
// participants that live on the other side of a transport.
type BlobSaver struct {
	mu           sync.RWMutex
	key          string
	data         string
	acrossScenes bool
}

// NewBlobSaver 创建数据块存档器
func NewBlobSaver(key string, acrossScenes bool) *BlobSaver {
	return &BlobSaver{key: key, acrossScenes: acrossScenes}
}

// Key implements Saver.
func (b *BlobSaver) Key() string { return b.key }

// RecordData implements Saver.
func (b *BlobSaver) RecordData() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

// ApplyData implements Saver.
func (b *BlobSaver) ApplyData(data string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
}

// OnBeforeSceneChange implements Saver.
func (b *BlobSaver) OnBeforeSceneChange() {}

// SaveAcrossSceneChanges implements CrossSceneSaver.
func (b *BlobSaver) SaveAcrossSceneChanges() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.acrossScenes
}

// SetAcrossSceneChanges changes whether the data survives scene changes.
func (b *BlobSaver) SetAcrossSceneChanges(value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acrossScenes = value
}
