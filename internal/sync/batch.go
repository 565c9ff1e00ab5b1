package sync

// DefaultBatchSize bounds every download chunk and upload batch.
const DefaultBatchSize = 1000

// chunk splits items into consecutive slices of at most size elements.
// The returned slices share the backing array of items.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}

	if len(items) == 0 {
		return nil
	}

	out := make([][]T, 0, (len(items)+size-1)/size)

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}

	return out
}
