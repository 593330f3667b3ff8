package intersection

// RightTurn reports whether v turns right: west to south, south to east,
// east to north or north to west.
func RightTurn(v Vehicle) bool {
	return v.Destination == (v.Origin+numDirections-1)%numDirections
}

// Safe reports whether a and b may be inside the intersection at the same
// time. The relation is symmetric.
func Safe(a, b Vehicle) bool {
	if a.Origin == b.Origin {
		return true
	}
	if a.Origin == b.Destination && a.Destination == b.Origin {
		return true
	}
	return a.Destination != b.Destination && (RightTurn(a) || RightTurn(b))
}

// firstConflict returns the index of the first vehicle in active that is
// unsafe with v, or -1.
func firstConflict(active []Vehicle, v Vehicle) int {
	for i, other := range active {
		if !Safe(v, other) {
			return i
		}
	}
	return -1
}
