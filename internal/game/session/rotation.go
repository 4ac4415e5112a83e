package session

// Rotation tracks whose turn it is in a cyclic member order.
// The zero value is not usable; use NewRotation.
type Rotation struct {
	order []string
	index int
}

// NewRotation starts a rotation over order at the member first.
//
// Precondition: order must be non-empty.
// Postcondition: Current() == first when first is in order, otherwise order[0].
func NewRotation(order []string, first string) *Rotation {
	r := &Rotation{order: append([]string(nil), order...)}
	for i, id := range r.order {
		if id == first {
			r.index = i
			break
		}
	}
	return r
}

// Current returns the member whose turn it is.
func (r *Rotation) Current() string {
	return r.order[r.index]
}

// Advance moves to the next member, wrapping at the end, and returns it.
func (r *Rotation) Advance() string {
	r.index = (r.index + 1) % len(r.order)
	return r.order[r.index]
}

// Is reports whether it is id's turn.
func (r *Rotation) Is(id string) bool {
	return r.Current() == id
}
