package tagfile

import (
	binpkg "github.com/robert-malhotra/go-dm4/internal/binary"
)

// chunkByteBudget caps the size of a single write when streaming large
// array payloads, bounding peak memory held by the underlying writer. A
// variable rather than a constant so tests can exercise the chunked path
// without allocating multi-megabyte fixtures.
var chunkByteBudget = 64 << 20

// writeArrayData streams an array payload. Buffers within the budget are
// written in one call. Larger buffers with a known shape are split along
// dimension boundaries: walking dimensions from the innermost outward, the
// chunk is the largest run of trailing dimensions that stays within the
// budget. Trailing dimensions are contiguous in the flattened buffer, so the
// output is bit-identical to a single monolithic write.
func writeArrayData(bw *binpkg.Writer, raw []byte, shape []int, itemSize int) error {
	if len(raw) <= chunkByteBudget {
		return bw.WriteBytes(raw)
	}
	chunk := chunkSpan(shape, itemSize, chunkByteBudget)
	if chunk <= 0 || chunk > len(raw) {
		chunk = chunkByteBudget
	}
	for off := 0; off < len(raw); off += chunk {
		end := off + chunk
		if end > len(raw) {
			end = len(raw)
		}
		if err := bw.WriteBytes(raw[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// chunkSpan returns the byte length of the largest run of trailing
// dimensions that fits in budget, or 0 when no shape is known or even the
// innermost dimension exceeds the budget.
func chunkSpan(shape []int, itemSize, budget int) int {
	if len(shape) == 0 {
		return 0
	}
	span := itemSize
	fit := 0
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] <= 0 || span > budget/shape[i] {
			break
		}
		span *= shape[i]
		fit++
	}
	if fit == 0 {
		return 0
	}
	return span
}
