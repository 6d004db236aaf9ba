package model

import (
	"fmt"
	"math"
)

// Position is a point on the simulation area, in metres.
type Position struct {
	X float64
	Y float64
}

// DistanceTo returns the straight-line distance between two points.
func (p Position) DistanceTo(other Position) float64 {
	return p.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (p Position) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Sub returns p - other.
func (p Position) Sub(other Position) Position {
	return Position{X: p.X - other.X, Y: p.Y - other.Y}
}

// Add returns p + other.
func (p Position) Add(other Position) Position {
	return Position{X: p.X + other.X, Y: p.Y + other.Y}
}

// Scale returns p multiplied by k.
func (p Position) Scale(k float64) Position {
	return Position{X: p.X * k, Y: p.Y * k}
}

// MoveToward returns the point reached by travelling at most maxStep from p
// toward target, and the distance actually travelled.
func (p Position) MoveToward(target Position, maxStep float64) (Position, float64) {
	if maxStep <= 0 {
		return p, 0
	}
	delta := target.Sub(p)
	dist := delta.Norm()
	if dist <= maxStep {
		return target, dist
	}
	return p.Add(delta.Scale(maxStep / dist)), maxStep
}

func (p Position) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Area is the rectangular simulation field anchored at the origin.
type Area struct {
	Width  float64
	Height float64
}

// Contains reports whether p lies inside the area (edges included).
func (a Area) Contains(p Position) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= a.Width && p.Y <= a.Height
}

// Clamp returns p moved onto the nearest point of the area.
func (a Area) Clamp(p Position) Position {
	return Position{
		X: math.Min(math.Max(p.X, 0), a.Width),
		Y: math.Min(math.Max(p.Y, 0), a.Height),
	}
}

// Center returns the midpoint of the area.
func (a Area) Center() Position {
	return Position{X: a.Width / 2, Y: a.Height / 2}
}
