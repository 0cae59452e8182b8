package types

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexBytesJSON(t *testing.T) {
	c := qt.New(t)
	b := HexBytes{0x01, 0xab, 0xff}
	data, err := json.Marshal(b)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `"0x01abff"`)

	var decoded HexBytes
	c.Assert(json.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(decoded, qt.DeepEquals, b)

	// the prefix is optional
	c.Assert(json.Unmarshal([]byte(`"01abff"`), &decoded), qt.IsNil)
	c.Assert(decoded, qt.DeepEquals, b)

	c.Assert(json.Unmarshal([]byte(`"0xzz"`), &decoded), qt.IsNotNil)
	c.Assert(HexStringToHexBytes("0x01abff"), qt.DeepEquals, b)
	c.Assert(HexStringToHexBytes("nothex"), qt.IsNil)
}
