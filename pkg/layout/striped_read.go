package layout

import "sort"

type partialResult struct {
	data     []byte
	intended uint64
}

// StripedReadResult reassembles the per-object results of a striped read
// into a single buffer.
//
// Each object read returns the data backing one ObjectExtent; the data
// may be short when the object is smaller than the extent (or missing).
// AddPartialResult scatters it over the extent's buffer ranges and
// Assemble stitches the ranges back together in buffer order.
type StripedReadResult struct {
	partial map[uint64]*partialResult
}

// NewStripedReadResult returns an empty result.
func NewStripedReadResult() *StripedReadResult {
	return &StripedReadResult{partial: make(map[uint64]*partialResult)}
}

// AddPartialResult records the data read for an object extent whose
// buffer ranges are bufferExtents. data is consumed in order; ranges left
// without data are recorded as short.
func (r *StripedReadResult) AddPartialResult(data []byte, bufferExtents []BufferExtent) {
	for _, be := range bufferExtents {
		actual := be.Length
		if uint64(len(data)) < actual {
			actual = uint64(len(data))
		}
		r.partial[be.Offset] = &partialResult{
			data:     data[:actual],
			intended: be.Length,
		}
		data = data[actual:]
	}
}

// Assemble returns the buffer built from all partial results and resets
// the result.
//
// Short ranges followed by data are always zero-filled. A short range at
// the tail is zero-filled only when zeroTail is set; otherwise the buffer
// ends where the data does.
func (r *StripedReadResult) Assemble(zeroTail bool) []byte {
	if len(r.partial) == 0 {
		return nil
	}

	offsets := make([]uint64, 0, len(r.partial))
	for off := range r.partial {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	last := r.partial[offsets[len(offsets)-1]]
	total := offsets[len(offsets)-1] + last.intended

	out := make([]byte, total)
	end := uint64(0)
	haveData := false

	// Walk backwards so that trailing holes can be dropped.
	for i := len(offsets) - 1; i >= 0; i-- {
		p := r.partial[offsets[i]]
		copy(out[offsets[i]:], p.data)

		if uint64(len(p.data)) == p.intended || zeroTail || haveData {
			if !haveData {
				end = offsets[i] + p.intended
			}
			haveData = true
			continue
		}

		if len(p.data) > 0 {
			end = offsets[i] + uint64(len(p.data))
			haveData = true
		}
	}

	r.partial = make(map[uint64]*partialResult)
	return out[:end]
}
