package lens

import (
	"math"
	"slices"
	"sort"

	"github.com/akmonengine/lens/config"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
)

// ============================================================================
// Types
// ============================================================================

// CellKey - coordinates of a cell in 3D space
type CellKey struct {
	X, Y, Z int
}

// Cell - indices of the volumes overlapping a cell
type Cell struct {
	volumeIndices []int
}

// maxCellsPerVolume bounds the cells a single volume is hashed into.
// Larger volumes are kept aside and tested for every query.
const maxCellsPerVolume = 4096

// VolumeIndex - uniform hashed grid over the world bounds of trigger volumes.
// Queries return volume indices in ascending order, so the discovery order of
// the volumes is kept.
type VolumeIndex struct {
	cellSize  float64
	cells     []Cell
	cellMask  int
	bounds    []volume.AABB
	oversized []int
}

// ============================================================================
// Constructor
// ============================================================================

// NewVolumeIndex - creates an index of numCells buckets (rounded to a power of two).
// A cell size that is not a positive finite number falls back to config.DefaultCellSize.
func NewVolumeIndex(cellSize float64, numCells int) *VolumeIndex {
	if !(cellSize > 0) || math.IsInf(cellSize, 1) {
		cellSize = config.DefaultCellSize
	}
	numCells = nextPowerOfTwo(numCells)

	cells := make([]Cell, numCells)
	for i := range cells {
		cells[i].volumeIndices = make([]int, 0, 4)
	}

	return &VolumeIndex{
		cellSize: cellSize,
		cells:    cells,
		cellMask: numCells - 1,
	}
}

// nextPowerOfTwo - rounds up to the next power of two
func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// Build - replaces the content of the index with boxes, index i being boxes[i].
// Bounds are computed by workers goroutines.
func (vi *VolumeIndex) Build(boxes []volume.OrientedBox, workers int) {
	vi.Clear()

	bounds := make([]volume.AABB, len(boxes))
	task(workers, boxes, func(i int, box volume.OrientedBox) {
		bounds[i] = box.ComputeAABB()
	})

	for i, aabb := range bounds {
		vi.Insert(i, aabb)
	}
	vi.SortCells()
}

// Insert - adds a volume to every cell its bounds overlap
func (vi *VolumeIndex) Insert(volumeIndex int, aabb volume.AABB) {
	for len(vi.bounds) <= volumeIndex {
		vi.bounds = append(vi.bounds, volume.AABB{})
	}
	vi.bounds[volumeIndex] = aabb

	if !finite(aabb.Min) || !finite(aabb.Max) {
		vi.oversized = append(vi.oversized, volumeIndex)
		return
	}

	minCell := vi.worldToCell(aabb.Min)
	maxCell := vi.worldToCell(aabb.Max)

	span := float64(maxCell.X-minCell.X+1) * float64(maxCell.Y-minCell.Y+1) * float64(maxCell.Z-minCell.Z+1)
	if span > maxCellsPerVolume {
		vi.oversized = append(vi.oversized, volumeIndex)
		return
	}

	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			for z := minCell.Z; z <= maxCell.Z; z++ {
				cellIdx := vi.hashCell(CellKey{x, y, z})

				vi.cells[cellIdx].volumeIndices = append(
					vi.cells[cellIdx].volumeIndices,
					volumeIndex,
				)
			}
		}
	}
}

func (vi *VolumeIndex) Clear() {
	for i := range vi.cells {
		vi.cells[i].volumeIndices = vi.cells[i].volumeIndices[:0]
	}
	vi.bounds = vi.bounds[:0]
	vi.oversized = vi.oversized[:0]
}

func (vi *VolumeIndex) SortCells() {
	for i := range vi.cells {
		if len(vi.cells[i].volumeIndices) > 1 {
			sort.Ints(vi.cells[i].volumeIndices)
		}
	}
	sort.Ints(vi.oversized)
}

// Len - number of indexed volumes
func (vi *VolumeIndex) Len() int {
	return len(vi.bounds)
}

// Candidates - volumes whose bounds contain point, in ascending index order.
// It is a broad phase: the exact oriented test is left to the caller.
func (vi *VolumeIndex) Candidates(point mgl64.Vec3) []int {
	cell := vi.cells[vi.hashCell(vi.worldToCell(point))]

	candidates := make([]int, 0, len(cell.volumeIndices)+len(vi.oversized))
	for _, idx := range cell.volumeIndices {
		// Hash collisions bring volumes from other cells
		if vi.bounds[idx].ContainsPoint(point) {
			candidates = append(candidates, idx)
		}
	}
	for _, idx := range vi.oversized {
		if vi.bounds[idx].ContainsPoint(point) {
			candidates = append(candidates, idx)
		}
	}

	slices.Sort(candidates)
	return slices.Compact(candidates)
}

// worldToCell - converts a world position to cell coordinates
func (vi *VolumeIndex) worldToCell(pos mgl64.Vec3) CellKey {
	return CellKey{
		X: int(math.Floor(pos.X() / vi.cellSize)),
		Y: int(math.Floor(pos.Y() / vi.cellSize)),
		Z: int(math.Floor(pos.Z() / vi.cellSize)),
	}
}

// hashCell - hashes a cell to an index in the array
func (vi *VolumeIndex) hashCell(key CellKey) int {
	h := (key.X * 73856093) ^ (key.Y * 19349663) ^ (key.Z * 83492791)
	return h & vi.cellMask
}

func finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
