package mqtt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragment(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 10)

	tests := []struct {
		name       string
		bufferSize int
		wantKinds  []ChunkKind
		wantOffset []int
	}{
		{"fits", 10, []ChunkKind{ChunkComplete}, []int{0}},
		{"no limit", 0, []ChunkKind{ChunkComplete}, []int{0}},
		{"even split", 5, []ChunkKind{ChunkInitial, ChunkSubsequent}, []int{0, 5}},
		{"uneven split", 4, []ChunkKind{ChunkInitial, ChunkSubsequent, ChunkSubsequent}, []int{0, 4, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := Fragment(7, "tramcast/ota/data", payload, tt.bufferSize)
			require.Len(t, frames, len(tt.wantKinds))

			var joined []byte
			for i, f := range frames {
				assert.Equal(t, tt.wantKinds[i], f.Details.Kind)
				assert.Equal(t, tt.wantOffset[i], f.Details.Offset)
				assert.Equal(t, len(payload), f.Details.Total)
				assert.Equal(t, uint16(7), f.ID)
				if f.Details.Kind == ChunkSubsequent {
					assert.Empty(t, f.Topic)
				} else {
					assert.Equal(t, "tramcast/ota/data", f.Topic)
				}
				joined = append(joined, f.Payload...)
			}
			assert.Equal(t, payload, joined)
		})
	}
}

func TestFragmentEmptyPayload(t *testing.T) {
	frames := Fragment(1, "villamos", nil, 4)
	require.Len(t, frames, 1)
	assert.Equal(t, ChunkComplete, frames[0].Details.Kind)
	assert.Zero(t, frames[0].Details.Total)
}
