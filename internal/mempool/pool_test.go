package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"small size gets minimum", 1, 1024},
		{"exactly 1024", 1024, 1024},
		{"just over 1024", 1025, 2048},
		{"exact multiple of 1024", 2048, 2048},
		{"large size", 640 * 480, 307200},
		{"zero size", 0, 1024},
		{"negative size", -1, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGetFloat64_LengthAndZeroed(t *testing.T) {
	for _, n := range []int{0, 100, 1024, 5000} {
		buf := GetFloat64(n)
		require.Len(t, buf, n)
		assert.GreaterOrEqual(t, cap(buf), sizeClass(n))
		for i := range buf {
			buf[i] = float64(i) + 1
		}
		PutFloat64(buf)

		again := GetFloat64(n)
		for i, v := range again {
			require.Zero(t, v, "index %d of reused buffer not cleared", i)
		}
		PutFloat64(again)
	}
}

func TestGetUint8_LengthAndZeroed(t *testing.T) {
	buf := GetUint8(3000)
	require.Len(t, buf, 3000)
	for i := range buf {
		buf[i] = 255
	}
	PutUint8(buf)

	again := GetUint8(2500)
	require.Len(t, again, 2500)
	for _, v := range again {
		require.Zero(t, v)
	}
}

func TestGet_NegativeLength(t *testing.T) {
	assert.Empty(t, GetUint8(-5))
	assert.Empty(t, GetFloat64(-5))
}

func TestPut_ForeignSlices(t *testing.T) {
	assert.NotPanics(t, func() {
		PutFloat64(nil)
		PutUint8(nil)
		PutUint8(make([]uint8, 10))   // below the smallest class: dropped
		PutUint8(make([]uint8, 1500)) // filed under the 1024 class
	})

	// A 1500-capacity slice filed under 1024 must still satisfy a 1024 request.
	buf := GetUint8(1024)
	assert.Len(t, buf, 1024)
	assert.GreaterOrEqual(t, cap(buf), 1024)
}

func TestPool_ConcurrentUse(t *testing.T) {
	const workers = 8
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := range 200 {
				n := 1000 + (seed*37+i*101)%5000
				f := GetFloat64(n)
				b := GetUint8(n)
				if len(f) != n || len(b) != n {
					t.Errorf("wrong lengths %d/%d for %d", len(f), len(b), n)
				}
				for j := range b {
					if b[j] != 0 {
						t.Errorf("dirty buffer")
						break
					}
					b[j] = uint8(seed)
				}
				PutFloat64(f)
				PutUint8(b)
			}
		}(w)
	}
	wg.Wait()
}
