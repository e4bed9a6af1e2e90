package utils

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBox_OrdersCorners(t *testing.T) {
	b := NewBox(10, 20, 2, 4)
	assert.Equal(t, Box{MinX: 2, MinY: 4, MaxX: 10, MaxY: 20}, b)
	assert.InDelta(t, 8, b.Width(), 0)
	assert.InDelta(t, 16, b.Height(), 0)
	assert.Equal(t, Box{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}, BoxFromRect(image.Rect(1, 2, 3, 4)))
}

func TestBox_ToRect(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 50)
	tests := []struct {
		name string
		box  Box
		want image.Rectangle
	}{
		{"inside", NewBox(10.2, 5.7, 20.1, 30.9), image.Rect(10, 5, 21, 31)},
		{"clamped", NewBox(-5, -5, 150, 80), bounds},
		{"outside", NewBox(200, 200, 300, 300), image.Rect(100, 50, 100, 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.box.ToRect(bounds))
		})
	}
}

func TestBoundingBox(t *testing.T) {
	assert.Equal(t, Box{}, BoundingBox(nil))
	pts := PointsFromImage([]image.Point{{3, 9}, {-1, 4}, {7, 2}})
	assert.Equal(t, Point{X: -1, Y: 4}, pts[1])
	assert.Equal(t, Box{MinX: -1, MinY: 2, MaxX: 7, MaxY: 9}, BoundingBox(pts))
}
