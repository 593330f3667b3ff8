package intersection

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/synchcore/internal/errors"
)

// Direction is one of the four approaches to the intersection.
type Direction int

// The approaches, in clockwise order.
const (
	North Direction = iota
	East
	South
	West

	numDirections = 4
)

var directionNames = [numDirections]string{"north", "east", "south", "west"}

// Directions returns the four approaches in clockwise order.
func Directions() []Direction {
	return []Direction{North, East, South, West}
}

// Valid reports whether d is one of the four approaches.
func (d Direction) Valid() bool {
	return d >= North && d <= West
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: invalid direction %d", errors.ErrInvalidArgument, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection accepts a full name or its first letter, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n":
		return North, nil
	case "east", "e":
		return East, nil
	case "south", "s":
		return South, nil
	case "west", "w":
		return West, nil
	}
	return 0, fmt.Errorf("%w: unknown direction %q", errors.ErrInvalidArgument, s)
}

// Vehicle is a movement through the intersection. Two vehicles with the same
// origin and destination are indistinguishable.
type Vehicle struct {
	Origin      Direction `json:"origin"`
	Destination Direction `json:"destination"`
}

func (v Vehicle) String() string {
	return v.Origin.String() + "->" + v.Destination.String()
}

// Validate rejects unknown directions and U-turns.
func (v Vehicle) Validate() error {
	if !v.Origin.Valid() || !v.Destination.Valid() {
		return fmt.Errorf("%w: vehicle %s has an unknown direction", errors.ErrInvalidArgument, v)
	}
	if v.Origin == v.Destination {
		return fmt.Errorf("%w: vehicle %s enters and leaves through the same side", errors.ErrInvalidArgument, v)
	}
	return nil
}
