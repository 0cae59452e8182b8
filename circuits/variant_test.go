package circuits

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestShapeArity(t *testing.T) {
	c := qt.New(t)
	c.Assert(JoinSplit.Inputs(), qt.Equals, 2)
	c.Assert(JoinSplit.Outputs(), qt.Equals, 2)
	c.Assert(Ownership.Inputs(), qt.Equals, 1)
	c.Assert(Ownership.Outputs(), qt.Equals, 1)
}

func TestVariantNames(t *testing.T) {
	c := qt.New(t)
	names := []string{}
	for _, v := range Variants {
		names = append(names, v.Name())
		parsed, err := ParseVariant(v.Name())
		c.Assert(err, qt.IsNil)
		c.Assert(parsed, qt.Equals, v)
	}
	c.Assert(names, qt.DeepEquals, []string{"JoinSplit", "JoinSplitOptimized", "Ownership", "OwnershipOptimized"})

	v, err := ParseVariant("joinsplitoptimized")
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, Variant{Shape: JoinSplit, Optimized: true})
	_, err = ParseVariant("Transfer")
	c.Assert(err, qt.IsNotNil)

	data, err := json.Marshal(map[string]Variant{"variant": {Shape: Ownership}})
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `{"variant":"Ownership"}`)
	var decoded map[string]Variant
	c.Assert(json.Unmarshal([]byte(`{"variant":"OwnershipOptimized"}`), &decoded), qt.IsNil)
	c.Assert(decoded["variant"], qt.Equals, Variant{Shape: Ownership, Optimized: true})
}
