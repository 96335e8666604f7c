package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseDriverID checks that parsing never panics and that accepted ids
// round-trip unchanged.
func FuzzParseDriverID(f *testing.F) {
	f.Add("")
	f.Add("D1")
	f.Add("all")
	f.Add("'; DROP TABLE drivers;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("D1\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseDriverID(input)
		if err != nil {
			return
		}
		roundTrip, err := ParseDriverID(id.String())
		if err != nil {
			t.Errorf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}
		if !utf8.ValidString(input) {
			t.Error("non-UTF8 input was accepted")
		}
	})
}
