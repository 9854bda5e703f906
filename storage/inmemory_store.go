package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"

	"github.com/luma/respkv/protocol"
)

// DefaultShardCount is used when no shard count, or an invalid one, is given.
const DefaultShardCount = 64

type shard struct {
	mu     sync.RWMutex
	values map[string]protocol.Frame
}

// InmemoryStore keeps frames in a map split into independently locked shards.
type InmemoryStore struct {
	shards    []*shard
	shardMask uint64

	// stop willl be closed when Close() is called
	stop     chan struct{}
	stopOnce sync.Once
}

func NewInmemoryStore() *InmemoryStore {
	return NewInmemoryStoreWithShards(DefaultShardCount)
}

// NewInmemoryStoreWithShards creates a store with count shards, rounded up to
// the next power of two.
func NewInmemoryStoreWithShards(count int) *InmemoryStore {
	if count < 1 {
		count = DefaultShardCount
	}
	count = nextPowerOf2(count)

	s := &InmemoryStore{
		shards:    make([]*shard, count),
		shardMask: uint64(count - 1),
		stop:      make(chan struct{}),
	}

	for i := range s.shards {
		s.shards[i] = &shard{values: make(map[string]protocol.Frame)}
	}

	return s
}

func (i *InmemoryStore) Close() error {
	i.stopOnce.Do(func() {
		close(i.stop)
	})

	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, key string) (protocol.Frame, bool, error) {
	if err := i.check(ctx); err != nil {
		return nil, false, err
	}

	sh := i.shardFor(key)
	sh.mu.RLock()
	value, ok := sh.values[key]
	sh.mu.RUnlock()

	return value, ok, nil
}

// Set stores value under key, replacing any previous value.
func (i *InmemoryStore) Set(ctx context.Context, key string, value protocol.Frame) error {
	if err := i.check(ctx); err != nil {
		return err
	}

	sh := i.shardFor(key)
	sh.mu.Lock()
	sh.values[key] = value
	sh.mu.Unlock()

	return nil
}

func (i *InmemoryStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if err := i.check(ctx); err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		sh := i.shardFor(key)

		sh.mu.Lock()
		if _, ok := sh.values[key]; ok {
			delete(sh.values, key)
			removed++
		}
		sh.mu.Unlock()
	}

	return removed, nil
}

func (i *InmemoryStore) Exists(ctx context.Context, keys ...string) (int, error) {
	if err := i.check(ctx); err != nil {
		return 0, err
	}

	found := 0
	for _, key := range keys {
		sh := i.shardFor(key)

		sh.mu.RLock()
		if _, ok := sh.values[key]; ok {
			found++
		}
		sh.mu.RUnlock()
	}

	return found, nil
}

func (i *InmemoryStore) Len() int {
	n := 0
	for _, sh := range i.shards {
		sh.mu.RLock()
		n += len(sh.values)
		sh.mu.RUnlock()
	}

	return n
}

// Range calls fn for every key until fn returns false. Shards are locked one
// at a time, so the view is not a consistent snapshot.
func (i *InmemoryStore) Range(fn func(key string, value protocol.Frame) bool) {
	for _, sh := range i.shards {
		sh.mu.RLock()
		for key, value := range sh.values {
			if !fn(key, value) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

// Restore replaces the content of the store with a snapshot produced by
// Backup. The whole snapshot is validated first and then swapped in at once,
// on error the store is untouched.
func (i *InmemoryStore) Restore(values []byte) error {
	if !i.isRunning() {
		return ErrClosed
	}

	if !gjson.ValidBytes(values) {
		return ErrInvalidSnapshot
	}

	root := gjson.ParseBytes(values)
	if !root.IsArray() {
		return ErrInvalidSnapshot
	}

	restored := make(map[string]protocol.Frame)

	var err error
	root.ForEach(func(_, entry gjson.Result) bool {
		key := entry.Get("key")
		if key.Type != gjson.String {
			err = fmt.Errorf("%w: entry without a key: %s", ErrInvalidSnapshot, entry.Raw)
			return false
		}

		var frame protocol.Frame
		if frame, err = UnmarshalFrame(entry); err != nil {
			return false
		}

		restored[key.String()] = frame
		return true
	})

	if err != nil {
		return err
	}

	maps := make([]map[string]protocol.Frame, len(i.shards))
	for n := range maps {
		maps[n] = make(map[string]protocol.Frame)
	}

	for key, frame := range restored {
		maps[i.shardIndex(key)][key] = frame
	}

	// Every shard is held, locked in index order, while the maps are swapped.
	// Readers see either the old content or the restored one.
	for _, sh := range i.shards {
		sh.mu.Lock()
	}

	for n, sh := range i.shards {
		sh.values = maps[n]
	}

	for _, sh := range i.shards {
		sh.mu.Unlock()
	}

	return nil
}

// Backup returns every key as a JSON array of entries, see MarshalFrames.
// Entries are copied out one shard at a time and marshalled without holding
// any lock.
func (i *InmemoryStore) Backup() ([]byte, error) {
	if !i.isRunning() {
		return nil, ErrClosed
	}

	return MarshalFrames(i.entries())
}

// entries copies every key and value. Stored frames are never mutated, so
// sharing them with the copy is safe.
func (i *InmemoryStore) entries() []Entry {
	out := make([]Entry, 0, i.Len())

	for _, sh := range i.shards {
		sh.mu.RLock()
		for key, value := range sh.values {
			out = append(out, Entry{Key: key, Value: value})
		}
		sh.mu.RUnlock()
	}

	return out
}

func (i *InmemoryStore) shardIndex(key string) uint64 {
	return xxhash.Sum64String(key) & i.shardMask
}

func (i *InmemoryStore) shardFor(key string) *shard {
	return i.shards[i.shardIndex(key)]
}

func (i *InmemoryStore) check(ctx context.Context) error {
	if !i.isRunning() {
		return ErrClosed
	}

	return ctx.Err()
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

var _ Store = (*InmemoryStore)(nil)
