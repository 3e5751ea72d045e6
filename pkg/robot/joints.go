package robot

import "slices"

// Joints is the ordered set of servo IDs found on the bus. The order is the
// selection order used everywhere else.
type Joints []int

// Index returns the position of id, or -1.
func (j Joints) Index(id int) int {
	return slices.Index(j, id)
}

// Contains reports whether id is on the bus.
func (j Joints) Contains(id int) bool {
	return j.Index(id) >= 0
}

// Next returns the index after i, wrapping to the first joint.
func (j Joints) Next(i int) int {
	if len(j) == 0 {
		return 0
	}
	return (i + 1) % len(j)
}

// Prev returns the index before i, wrapping to the last joint.
func (j Joints) Prev(i int) int {
	if len(j) == 0 {
		return 0
	}
	return (i - 1 + len(j)) % len(j)
}
