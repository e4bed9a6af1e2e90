package detector

import "image"

// Region is the compressed outer border of one external foreground component.
type Region struct {
	Points     []image.Point   // Border corners, clockwise in image coordinates
	PixelCount int             // Pixels of the component, holes excluded
	Bounds     image.Rectangle // Pixel-edge aligned bounding box
}

// ExtractRegions traces the outer border of every external 8-connected
// foreground component in mask. Holes are not traced and components nested
// inside holes are skipped. Runs of equal step direction are reduced to their
// end points. Regions are ordered by the raster position of their first pixel.
func ExtractRegions(mask GrayBuffer) ([]Region, error) {
	if err := mask.Validate(); err != nil {
		return nil, err
	}
	comps, labels := connectedComponents(mask)
	markOuterComponents(mask, labels, comps)

	regions := make([]Region, 0, len(comps))
	for _, c := range comps {
		if !c.outer {
			continue
		}
		dense := traceBorder(labels, mask.Width, mask.Height, c)
		regions = append(regions, Region{
			Points:     compressChain(dense),
			PixelCount: c.count,
			Bounds:     image.Rect(c.minX, c.minY, c.maxX+1, c.maxY+1),
		})
	}
	return regions, nil
}

// traceBorder follows the outer border of one labeled component with
// Moore-neighbour tracing, starting at its first raster pixel and stopping
// when the start pixel is about to be left in the same direction as the
// first move (Jacob's criterion).
func traceBorder(labels []int, w, h int, st compStats) []image.Point {
	inside := func(p image.Point) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h && labels[p.Y*w+p.X] == st.label
	}
	// next scans the 8 neighbours of c clockwise, starting just after back.
	next := func(c image.Point, back int) (image.Point, int, bool) {
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			n := c.Add(image.Pt(dirs8[d][0], dirs8[d][1]))
			if inside(n) {
				return n, d, true
			}
		}
		return c, 0, false
	}

	start := image.Pt(st.startX, st.startY)
	pts := make([]image.Point, 1, 64)
	pts[0] = start

	// The first raster pixel always has background to its west.
	const west = 4
	first, firstDir, ok := next(start, west)
	if !ok {
		return pts
	}

	cur, back := first, (firstDir+4)%8
	maxSteps := 4*st.count + 8
	for range maxSteps {
		n, d, _ := next(cur, back)
		if cur == start && n == first {
			break
		}
		pts = append(pts, cur)
		cur, back = n, (d+4)%8
	}
	return pts
}

// compressChain keeps only the points where the step direction changes,
// treating pts as a closed chain.
func compressChain(pts []image.Point) []image.Point {
	n := len(pts)
	if n <= 2 {
		return append([]image.Point(nil), pts...)
	}
	out := make([]image.Point, 0, n/2+1)
	for i := range n {
		prev := pts[(i+n-1)%n]
		cur := pts[i]
		nxt := pts[(i+1)%n]
		if cur.Sub(prev) != nxt.Sub(cur) {
			out = append(out, cur)
		}
	}
	if len(out) == 0 {
		out = append(out, pts[0])
	}
	return out
}
