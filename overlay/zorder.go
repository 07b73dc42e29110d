package overlay

import (
	"cmp"
	"slices"
	"strconv"
)

// zOrder stacks drawable nodes by camera distance: the farthest node gets
// z-index 1 and paints first, the nearest gets the highest index.
func (r *Renderer) zOrder(scene *Node) {
	nodes := scene.Flatten()

	slices.SortStableFunc(nodes, func(a, b *Node) int {
		return cmp.Compare(r.distance(a), r.distance(b))
	})

	zMax := len(nodes)
	for i, node := range nodes {
		zIndex := strconv.Itoa(zMax - i)

		cache := r.nodes[node]
		if cache == nil || cache.zIndex == zIndex {
			continue
		}
		node.Element.SetStyle("z-index", zIndex)
		cache.zIndex = zIndex
	}
}

func (r *Renderer) distance(node *Node) float64 {
	if cache, ok := r.nodes[node]; ok {
		return cache.distance
	}
	return 0
}
