// Package mempool provides sized pools for the scratch buffers of the image
// stages, so repeated images of the same size reuse their allocations.
package mempool

import (
	"sync"
)

// sizeClass rounds n up to the next multiple of 1024 (minimum 1024).
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

// slicePool keeps one sync.Pool per size class.
type slicePool[T any] struct {
	pools sync.Map // key: size class (int), value: *sync.Pool
}

func (sp *slicePool[T]) pool(cls int) *sync.Pool {
	pAny, _ := sp.pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	p, _ := pAny.(*sync.Pool)
	return p
}

// get returns a zeroed slice of length n.
func (sp *slicePool[T]) get(n int) []T {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	buf, ok := sp.pool(cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

func (sp *slicePool[T]) put(buf []T) {
	if buf == nil {
		return
	}
	// A slice that did not come from get may have a capacity between classes;
	// file it under the class it fully covers.
	cls := sizeClass(cap(buf))
	if cls > cap(buf) {
		cls -= 1024
		if cls < 1024 {
			return
		}
	}
	sp.pool(cls).Put(buf[:cap(buf)]) //nolint:staticcheck
}

var (
	float64Pool slicePool[float64]
	uint8Pool   slicePool[uint8]
)

// GetFloat64 retrieves a zeroed []float64 of length n. Return it with PutFloat64.
func GetFloat64(n int) []float64 { return float64Pool.get(n) }

// PutFloat64 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat64(buf []float64) { float64Pool.put(buf) }

// GetUint8 retrieves a zeroed []uint8 of length n. Return it with PutUint8.
func GetUint8(n int) []uint8 { return uint8Pool.get(n) }

// PutUint8 returns a buffer to the pool. It is safe to pass a nil slice.
func PutUint8(buf []uint8) { uint8Pool.put(buf) }
