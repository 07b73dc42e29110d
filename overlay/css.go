package overlay

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// epsilonThreshold zeroes matrix noise before it reaches a CSS string
const epsilonThreshold = 1e-10

func epsilon(value float64) float64 {
	if math.Abs(value) < epsilonThreshold {
		return 0
	}
	return value
}

// formatNumber writes v the way CSS expects it: no exponent, no negative zero.
func formatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Pixels formats a CSS length in pixels
func Pixels(v float64) string {
	return formatNumber(v) + "px"
}

// Sign flips converting from the engine's Y-up space to the DOM's Y-down space.
// Camera matrices negate the second row, object matrices the second column.
var (
	cameraFlips = [16]bool{1: true, 5: true, 9: true, 13: true}
	objectFlips = [16]bool{4: true, 5: true, 6: true, 7: true}
)

func matrix3d(m mgl64.Mat4, flips *[16]bool) string {
	var sb strings.Builder
	sb.Grow(16 * 12)
	sb.WriteString("matrix3d(")
	for i, v := range m {
		if i > 0 {
			sb.WriteByte(',')
		}
		if flips[i] {
			v = -v
		}
		sb.WriteString(formatNumber(epsilon(v)))
	}
	sb.WriteByte(')')
	return sb.String()
}

// CameraCSSMatrix formats the inverse camera world matrix as a CSS matrix3d
func CameraCSSMatrix(inverse mgl64.Mat4) string {
	return matrix3d(inverse, &cameraFlips)
}

// ObjectCSSMatrix formats a node world matrix as a CSS matrix3d
func ObjectCSSMatrix(world mgl64.Mat4) string {
	return matrix3d(world, &objectFlips)
}

// translate2D formats a CSS translate() in pixels
func translate2D(x, y float64) string {
	return "translate(" + Pixels(x) + "," + Pixels(y) + ")"
}
