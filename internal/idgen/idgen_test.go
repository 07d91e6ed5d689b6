package idgen

import (
	"testing"
)

func TestEncodeBase36(t *testing.T) {
	tests := []struct {
		data   []byte
		length int
		want   string
	}{
		{[]byte{0}, 3, "000"},
		{[]byte{35}, 1, "z"},
		{[]byte{36}, 2, "10"},
		{[]byte{0x01, 0x00}, 4, "0074"}, // 256
		{[]byte{0xff, 0xff}, 2, "kf"},   // 65535 = "1ekf", keep low digits
	}
	for _, tt := range tests {
		if got := EncodeBase36(tt.data, tt.length); got != tt.want {
			t.Errorf("EncodeBase36(%v, %d) = %q, want %q", tt.data, tt.length, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(PrefixDecision)
		if !HasPrefix(id, PrefixDecision) {
			t.Fatalf("malformed id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if HasPrefix(New(PrefixAssumption), PrefixDecision) {
		t.Fatal("assumption id matched decision prefix")
	}
}
