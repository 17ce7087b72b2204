package exporter

import (
	"image"
	"math"
	"testing"
)

func closeTo(a, b Point) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func TestOptionsMatrix(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		in   Point
		want Point
	}{
		{"identity", Options{}, Point{3, 4}, Point{3, 4}},
		{"rotate 90 about origin", Options{Rotation: 90}, Point{1, 0}, Point{0, 1}},
		{"rotate 180 about center", Options{Rotation: 180, Origin: Point{50, 50}}, Point{60, 50}, Point{40, 50}},
		{"center is fixed", Options{Rotation: 33, Skew: 4, Origin: Point{10, 20}}, Point{10, 20}, Point{10, 20}},
		{"skew 45", Options{Skew: 45}, Point{0, 10}, Point{10, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opts.Matrix().Transform(tt.in)
			if !closeTo(got, tt.want) {
				t.Errorf("Transform(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMatrixPolygon(t *testing.T) {
	p := Identity().Polygon(image.Rect(1, 2, 5, 8))
	want := Polygon{{1, 2}, {5, 2}, {5, 8}, {1, 8}}
	if p != want {
		t.Errorf("Polygon = %v, want %v", p, want)
	}
	if !Translate(0, 0).IsIdentity() {
		t.Error("zero translation is not identity")
	}
}

func TestBBoxRect(t *testing.T) {
	r := image.Rect(3, 4, 10, 12)
	if got := NewBBox(r).Rect(); got != r {
		t.Errorf("round trip = %v, want %v", got, r)
	}
}
