package detector

import "container/list"

// compStats represents statistics for a connected component.
type compStats struct {
	label  int
	count  int
	startX int // first pixel in raster order
	startY int
	minX   int
	minY   int
	maxX   int
	maxY   int
	outer  bool // touches the background connected to the image exterior
}

var (
	// 8-neighbourhood used for foreground connectivity.
	dirs8 = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	// 4-neighbourhood used for background connectivity.
	dirs4 = [4][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
)

// connectedComponents labels 8-connected foreground components of mask.
// Labels start at 1; background pixels keep label 0. Components are returned
// in raster order of their first pixel.
func connectedComponents(mask GrayBuffer) ([]compStats, []int) {
	w, h := mask.Width, mask.Height
	labels := make([]int, w*h)
	var comps []compStats
	label := 1

	for y := range h {
		for x := range w {
			idx := y*w + x
			if mask.Pix[idx] != Background && labels[idx] == 0 {
				comps = append(comps, performComponentBFS(mask, labels, x, y, label))
				label++
			}
		}
	}

	return comps, labels
}

// performComponentBFS floods one component starting from a seed pixel.
func performComponentBFS(mask GrayBuffer, labels []int, startX, startY, label int) compStats {
	w, h := mask.Width, mask.Height
	st := compStats{
		label: label, startX: startX, startY: startY,
		minX: startX, minY: startY, maxX: startX, maxY: startY,
	}

	q := list.New()
	q.PushBack(startY*w + startX)
	labels[startY*w+startX] = label

	for q.Len() > 0 {
		e := q.Front()
		q.Remove(e)
		ci, ok := e.Value.(int)
		if !ok {
			continue
		}
		cx, cy := ci%w, ci/w
		updateComponentStats(&st, cx, cy)

		for _, d := range dirs8 {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			ni := ny*w + nx
			if mask.Pix[ni] != Background && labels[ni] == 0 {
				labels[ni] = label
				q.PushBack(ni)
			}
		}
	}
	return st
}

func updateComponentStats(st *compStats, cx, cy int) {
	st.count++
	if cx < st.minX {
		st.minX = cx
	}
	if cy < st.minY {
		st.minY = cy
	}
	if cx > st.maxX {
		st.maxX = cx
	}
	if cy > st.maxY {
		st.maxY = cy
	}
}

// markOuterComponents flags components that border the exterior background.
// The exterior is every background pixel 4-connected to the image frame,
// plus the frame itself. Components sitting inside another component's hole
// stay unflagged.
func markOuterComponents(mask GrayBuffer, labels []int, comps []compStats) {
	w, h := mask.Width, mask.Height
	exterior := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))

	seed := func(x, y int) {
		i := y*w + x
		if mask.Pix[i] == Background && !exterior[i] {
			exterior[i] = true
			queue = append(queue, i)
		}
	}
	for x := range w {
		seed(x, 0)
		seed(x, h-1)
	}
	for y := range h {
		seed(0, y)
		seed(w-1, y)
	}
	for len(queue) > 0 {
		ci := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		cx, cy := ci%w, ci/w
		for _, d := range dirs4 {
			nx, ny := cx+d[0], cy+d[1]
			if nx >= 0 && nx < w && ny >= 0 && ny < h {
				seed(nx, ny)
			}
		}
	}

	outer := make([]bool, len(comps)+1)
	for y := range h {
		for x := range w {
			l := labels[y*w+x]
			if l == 0 || outer[l] {
				continue
			}
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				outer[l] = true
				continue
			}
			for _, d := range dirs4 {
				if exterior[(y+d[1])*w+x+d[0]] {
					outer[l] = true
					break
				}
			}
		}
	}
	for i := range comps {
		comps[i].outer = outer[comps[i].label]
	}
}
