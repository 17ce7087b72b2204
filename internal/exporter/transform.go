package exporter

import (
	"image"
	"math"
)

// Point is a position in page coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is a transformed rectangle: top-left, top-right, bottom-right, bottom-left
type Polygon [4]Point

// BBox is an axis-aligned rectangle as x0, y0, x1, y1 in image pixels
type BBox [4]int

// NewBBox converts an image rectangle
func NewBBox(r image.Rectangle) BBox {
	return BBox{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}

// Rect returns the box as an image rectangle
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b[0], b[1], b[2], b[3])
}

// Matrix is a 2D affine transformation [a b c d e f] applied as
// x' = a*x + c*y + e, y' = b*x + d*y + f
type Matrix [6]float64

// Identity returns the identity matrix
func Identity() Matrix {
	return Matrix{1, 0, 0, 1, 0, 0}
}

// Translate creates a translation matrix
func Translate(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}
}

// Rotate creates a rotation matrix (angle in degrees, clockwise in image space)
func Rotate(degrees float64) Matrix {
	rad := degrees * math.Pi / 180
	cos := math.Cos(rad)
	sin := math.Sin(rad)
	return Matrix{cos, sin, -sin, cos, 0, 0}
}

// Shear creates a horizontal shear matrix for a skew angle in degrees
func Shear(degrees float64) Matrix {
	return Matrix{1, 0, math.Tan(degrees * math.Pi / 180), 1, 0, 0}
}

// Multiply returns the transform that applies m first, then other
func (m Matrix) Multiply(other Matrix) Matrix {
	return Matrix{
		m[0]*other[0] + m[1]*other[2],
		m[0]*other[1] + m[1]*other[3],
		m[2]*other[0] + m[3]*other[2],
		m[2]*other[1] + m[3]*other[3],
		m[4]*other[0] + m[5]*other[2] + other[4],
		m[4]*other[1] + m[5]*other[3] + other[5],
	}
}

// Transform applies the matrix to a point
func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// IsIdentity reports whether the matrix leaves every point unchanged
func (m Matrix) IsIdentity() bool {
	return m == Identity()
}

// Polygon transforms the four corners of r
func (m Matrix) Polygon(r image.Rectangle) Polygon {
	corners := Polygon{
		{X: float64(r.Min.X), Y: float64(r.Min.Y)},
		{X: float64(r.Max.X), Y: float64(r.Min.Y)},
		{X: float64(r.Max.X), Y: float64(r.Max.Y)},
		{X: float64(r.Min.X), Y: float64(r.Max.Y)},
	}
	for i, p := range corners {
		corners[i] = m.Transform(p)
	}
	return corners
}

// Matrix builds the page transform: shear by Skew, then rotate by Rotation,
// both about Origin. Rectangles recognized on a deskewed, upright image are
// mapped back onto the original scan.
func (o Options) Matrix() Matrix {
	if o.Rotation == 0 && o.Skew == 0 {
		return Identity()
	}
	return Translate(-o.Origin.X, -o.Origin.Y).
		Multiply(Shear(o.Skew)).
		Multiply(Rotate(o.Rotation)).
		Multiply(Translate(o.Origin.X, o.Origin.Y))
}
