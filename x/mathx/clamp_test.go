package mathx

import "testing"

func TestClampSwapsBounds(t *testing.T) {
	if got := Clamp(12, 10, 0); got != 10 {
		t.Fatalf("Clamp(12,10,0) = %d", got)
	}
	if got := Clamp(-1, 0, 10); got != 0 {
		t.Fatalf("Clamp(-1,0,10) = %d", got)
	}
	if !Between(5, 9, 1) {
		t.Fatal("Between should be order-insensitive")
	}
}

func TestWrapCyclesBothWays(t *testing.T) {
	cases := []struct{ v, d, want int }{
		{1, 1, 2},
		{4, 1, 1},
		{1, -1, 4},
		{2, -6, 4},
		{3, 8, 3},
	}
	for _, c := range cases {
		if got := Wrap(c.v, c.d, 1, 4); got != c.want {
			t.Fatalf("Wrap(%d,%d) = %d want %d", c.v, c.d, got, c.want)
		}
	}
	if got := Wrap(uint8(4), uint8(1), 1, 4); got != 1 {
		t.Fatalf("unsigned wrap = %d", got)
	}
}

func TestSignAndAbs(t *testing.T) {
	if Sign(-7) != -1 || Sign(0) != 0 || Sign(int16(3)) != 1 {
		t.Fatal("Sign")
	}
	if Abs(int32(-4)) != 4 {
		t.Fatal("Abs")
	}
}
