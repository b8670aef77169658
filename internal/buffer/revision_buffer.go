package buffer

import (
	"sort"
	"sync"

	v1 "tiergate/pkg/api/v1"
)

// RevisionBuffer is a fixed-size ring of recent stream messages, ordered by
// etcd revision. Reconnecting clients replay from it; once their revision has
// been evicted they must take a full snapshot instead.
type RevisionBuffer struct {
	mu       sync.RWMutex
	messages []v1.Message
	size     int
	head     int
	isFull   bool
}

func NewRevisionBuffer(size int) *RevisionBuffer {
	if size <= 0 {
		size = 1000
	}
	return &RevisionBuffer{
		messages: make([]v1.Message, size),
		size:     size,
	}
}

func (b *RevisionBuffer) Add(msg v1.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages[b.head] = msg
	b.head = (b.head + 1) % b.size
	if b.head == 0 {
		b.isFull = true
	}
}

// GetSince returns the messages with revision > lastRev. The second return
// is false when lastRev predates the oldest retained message and the caller
// needs a full resync.
func (b *RevisionBuffer) GetSince(lastRev int64) ([]v1.Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.head
	start := 0
	if b.isFull {
		count = b.size
		start = b.head
	}

	if count == 0 {
		return nil, true
	}

	oldestRev := b.messages[start].Revision
	if lastRev < oldestRev {
		return nil, false
	}

	// Logical index i maps to physical index (start + i) % size.
	idx := sort.Search(count, func(i int) bool {
		return b.messages[(start+i)%b.size].Revision > lastRev
	})
	if idx == count {
		return nil, true
	}

	result := make([]v1.Message, 0, count-idx)
	for i := idx; i < count; i++ {
		result = append(result, b.messages[(start+i)%b.size])
	}
	return result, true
}
