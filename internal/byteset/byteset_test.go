package byteset

import "testing"

func TestSetMembership(t *testing.T) {
	s := New(1, 2, 255)
	for _, c := range []int{1, 2, 255} {
		if !s.Test(c) {
			t.Errorf("Test(%d) = false, want true", c)
		}
	}
	for _, c := range []int{0, 3, 128, 254} {
		if s.Test(c) {
			t.Errorf("Test(%d) = true, want false", c)
		}
	}
}

func TestSetOutOfRange(t *testing.T) {
	s := New(-1, 256, 1000)
	if s.Test(-1) || s.Test(256) {
		t.Error("out-of-range codes should never test true")
	}
}

func TestEmptySet(t *testing.T) {
	var s Set
	if s.Test(0) {
		t.Error("zero-value Set should contain nothing")
	}
}
