package pipeline

// Batches splits items into ceil(N/B) contiguous, order-preserving slices.
// The returned slices alias the input. A size below 1 is treated as 1.
func Batches[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
