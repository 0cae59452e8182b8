package circuits

import (
	"fmt"
	"strings"

	"github.com/vocdoni/aegis/config"
)

// Shape is the cardinality of a transaction: how many notes it spends and
// how many it creates. Every shape shares the same assembly code, only the
// arities differ.
type Shape int

const (
	// JoinSplit spends several notes into several new ones preserving the
	// total value.
	JoinSplit Shape = iota
	// Ownership transfers a single note to a new owner.
	Ownership
)

// Inputs returns the number of notes spent by the shape.
func (s Shape) Inputs() int {
	if s == Ownership {
		return config.OwnershipInputs
	}
	return config.JoinSplitInputs
}

// Outputs returns the number of notes created by the shape.
func (s Shape) Outputs() int {
	if s == Ownership {
		return config.OwnershipOutputs
	}
	return config.JoinSplitOutputs
}

func (s Shape) String() string {
	switch s {
	case JoinSplit:
		return config.JoinSplitCircuit
	case Ownership:
		return config.OwnershipCircuit
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// Variant identifies a circuit: a transaction shape and whether its public
// inputs are compressed into a single hash.
type Variant struct {
	Shape     Shape
	Optimized bool
}

// Variants lists every circuit the node can prove.
var Variants = []Variant{
	{Shape: JoinSplit},
	{Shape: JoinSplit, Optimized: true},
	{Shape: Ownership},
	{Shape: Ownership, Optimized: true},
}

// Name returns the circuit name of the variant, which is also the base name
// of its artifacts.
func (v Variant) Name() string {
	if v.Optimized {
		return v.Shape.String() + "Optimized"
	}
	return v.Shape.String()
}

func (v Variant) String() string {
	return v.Name()
}

// ParseVariant returns the variant of a circuit name, case insensitive.
func ParseVariant(name string) (Variant, error) {
	for _, v := range Variants {
		if strings.EqualFold(v.Name(), name) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("unknown circuit variant %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.Name()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(data []byte) error {
	parsed, err := ParseVariant(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
