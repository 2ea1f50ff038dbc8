package core

const (
	// DefaultMaxLogBytes is the per-task log budget when none is given.
	DefaultMaxLogBytes = 1 << 20
	// MinLogBytes is the enforced floor for caller-supplied budgets.
	MinLogBytes = 1024
	// logItemOverhead is the fixed accounting charge per retained item,
	// covering the timestamp, stream tag and slice bookkeeping.
	logItemOverhead = 32
)

// logBuffer is a bounded deque of log items with a running byte total.
// The total is updated on every push and evict, never recomputed by a
// full scan. Not safe for concurrent use; the owning task serializes
// access.
type logBuffer struct {
	items []LogItem
	bytes int
	max   int
}

func newLogBuffer(max int) *logBuffer {
	if max <= 0 {
		max = DefaultMaxLogBytes
	}
	if max < MinLogBytes {
		max = MinLogBytes
	}
	return &logBuffer{max: max}
}

func itemSize(item LogItem) int {
	return len(item.Text) + logItemOverhead
}

// push appends an item and evicts from the oldest end until the buffer
// is under budget or empty. A single item larger than the whole budget
// therefore evicts everything, including itself.
func (b *logBuffer) push(item LogItem) {
	b.items = append(b.items, item)
	b.bytes += itemSize(item)
	for b.bytes > b.max && len(b.items) > 0 {
		b.bytes -= itemSize(b.items[0])
		b.items[0] = LogItem{}
		b.items = b.items[1:]
	}
}

// view selects retained items. tail wins over offset when both are set;
// with neither, every retained item is returned. The returned slice
// aliases the buffer and must be consumed before the next mutation.
func (b *logBuffer) view(offset, tail *int) (selected []LogItem, total int) {
	total = len(b.items)
	switch {
	case tail != nil:
		n := *tail
		if n < 0 {
			n = 0
		}
		if n > total {
			n = total
		}
		selected = b.items[total-n:]
	case offset != nil:
		n := *offset
		if n < 0 {
			n = 0
		}
		if n > total {
			n = total
		}
		selected = b.items[n:]
	default:
		selected = b.items
	}
	return selected, total
}

func (b *logBuffer) size() int { return b.bytes }
