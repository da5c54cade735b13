// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package buffers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinels(t *testing.T) {
	assert.True(t, InPlace.IsInPlace())
	assert.True(t, InPlace.IsSentinel())
	assert.False(t, InPlace.IsBottom())
	assert.True(t, Bottom.IsBottom())
	assert.Nil(t, Bottom.Bytes())
	assert.Equal(t, "MPI_IN_PLACE", InPlace.String())
	assert.Equal(t, "MPI_BOTTOM", Bottom.String())
	assert.False(t, Of(nil).IsSentinel())
}

func TestSameAddress(t *testing.T) {
	data := make([]byte, 16)
	other := make([]byte, 16)
	assert.True(t, SameAddress(Of(data), Of(data)))
	assert.True(t, SameAddress(Of(data), Of(data[:4])))
	assert.False(t, SameAddress(Of(data), Of(data[1:])))
	assert.False(t, SameAddress(Of(data), Of(other)))
	assert.True(t, SameAddress(InPlace, InPlace))
	assert.True(t, SameAddress(Bottom, Bottom))
	assert.False(t, SameAddress(Bottom, InPlace))
	assert.False(t, SameAddress(Of(data), Bottom))
	assert.True(t, SameAddress(Of(nil), Of(nil)))
}

func TestFromSlice(t *testing.T) {
	values := []float64{1, 2, 3}
	b := FromSlice(values)
	assert.Equal(t, 24, b.Len())
	for ii := range 8 {
		b.Bytes()[ii] = 0
	}
	assert.Equal(t, 0.0, values[0])
	assert.True(t, SameAddress(b, FromSlice(values)))
	assert.Equal(t, 0, FromSlice([]int32{}).Len())
}
