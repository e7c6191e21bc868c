// Package geometry computes joint angles from 2D landmark positions.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/meltforce/posecoach/internal/models"
)

// ErrDegenerate is returned when a ray of the angle has zero length, which
// happens when an end point coincides with the vertex.
var ErrDegenerate = errors.New("degenerate angle")

// Angle returns the interior angle at vertex b formed by the rays b->a and
// b->c, in degrees within [0, 180].
//
// Computed as atan2(|cross|, dot) of the two rays, which is exact for
// collinear points where acos of a rounded cosine drifts or yields NaN.
func Angle(a, b, c models.Point2D) (float64, error) {
	bax, bay := a.X-b.X, a.Y-b.Y
	bcx, bcy := c.X-b.X, c.Y-b.Y

	if bax == 0 && bay == 0 {
		return 0, fmt.Errorf("%w: first point coincides with vertex", ErrDegenerate)
	}
	if bcx == 0 && bcy == 0 {
		return 0, fmt.Errorf("%w: last point coincides with vertex", ErrDegenerate)
	}

	dot := bax*bcx + bay*bcy
	cross := math.Abs(bax*bcy - bay*bcx)
	return math.Atan2(cross, dot) * 180 / math.Pi, nil
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b models.Point2D) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
