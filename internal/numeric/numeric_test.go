package numeric_test

import (
	"errors"
	"math"
	"testing"

	"PerpCore/internal/numeric"
)

func TestCheckedAdd_Overflow(t *testing.T) {
	if _, err := numeric.CheckedAdd(math.MaxInt64, 1); !errors.Is(err, numeric.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	if _, err := numeric.CheckedAdd(math.MinInt64, -1); !errors.Is(err, numeric.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestCheckedAdd_Normal(t *testing.T) {
	got, err := numeric.CheckedAdd(40, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestCheckedSub_Overflow(t *testing.T) {
	if _, err := numeric.CheckedSub(math.MinInt64, 1); !errors.Is(err, numeric.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestCheckedMul_Overflow(t *testing.T) {
	if _, err := numeric.CheckedMul(math.MaxInt64, 2); !errors.Is(err, numeric.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	if _, err := numeric.CheckedMul(math.MinInt64, -1); !errors.Is(err, numeric.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestCheckedMul_Zero(t *testing.T) {
	got, err := numeric.CheckedMul(math.MaxInt64, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestClampNonNegative(t *testing.T) {
	if got := numeric.ClampNonNegative(-5); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if got := numeric.ClampNonNegative(5); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestClamp(t *testing.T) {
	if got := numeric.Clamp(1500, -1000, 1000); got != 1000 {
		t.Errorf("got %d, want 1000", got)
	}
	if got := numeric.Clamp(-1500, -1000, 1000); got != -1000 {
		t.Errorf("got %d, want -1000", got)
	}
	if got := numeric.Clamp(7, -1000, 1000); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}

func TestWeightedAveragePrice_EqualLegs(t *testing.T) {
	got, err := numeric.WeightedAveragePrice(1000, 10, 1200, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1100 {
		t.Errorf("got %d, want 1100", got)
	}
}

func TestWeightedAveragePrice_SkewedLegs(t *testing.T) {
	// 1000*30 + 2000*10 = 50000 over 40 units
	got, err := numeric.WeightedAveragePrice(1000, 30, 2000, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1250 {
		t.Errorf("got %d, want 1250", got)
	}
}

func TestWeightedAveragePrice_TruncatesTowardZero(t *testing.T) {
	// (1000*3 + 1001*1) / 4 = 4001/4 = 1000.25
	got, err := numeric.WeightedAveragePrice(1000, 3, 1001, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1000 {
		t.Errorf("got %d, want 1000", got)
	}
}

func TestWeightedAveragePrice_LargeLegsNoIntermediateOverflow(t *testing.T) {
	// Each product exceeds int64; the quotient does not.
	big := int64(3_000_000_000)
	got, err := numeric.WeightedAveragePrice(big, big, big, big)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != big {
		t.Errorf("got %d, want %d", got, big)
	}
}

func TestWeightedAveragePrice_SplitAddNearCombined(t *testing.T) {
	// Splitting one same-direction add into two sequential adds lands
	// within integer-rounding distance of the combined result.
	cases := []struct {
		name          string
		entry, size   int64
		price         int64
		first, second int64
	}{
		{"even split", 1000, 10, 1200, 5, 5},
		{"uneven split", 1000, 7, 1300, 4, 5},
		{"small then large", 950, 20, 800, 1, 39},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			combined, err := numeric.WeightedAveragePrice(tc.entry, tc.size, tc.price, tc.first+tc.second)
			if err != nil {
				t.Fatalf("combined: %v", err)
			}
			mid, err := numeric.WeightedAveragePrice(tc.entry, tc.size, tc.price, tc.first)
			if err != nil {
				t.Fatalf("first add: %v", err)
			}
			sequential, err := numeric.WeightedAveragePrice(mid, tc.size+tc.first, tc.price, tc.second)
			if err != nil {
				t.Fatalf("second add: %v", err)
			}
			if diff := sequential - combined; diff < -1 || diff > 1 {
				t.Errorf("sequential %d vs combined %d, diff %d exceeds rounding tolerance", sequential, combined, diff)
			}
		})
	}
}

func TestWeightedAveragePrice_BetweenInputs(t *testing.T) {
	entry, err := numeric.WeightedAveragePrice(900, 7, 1300, 13)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry < 900 || entry > 1300 {
		t.Errorf("blended entry %d outside [900, 1300]", entry)
	}
}

func TestMulBps(t *testing.T) {
	got, err := numeric.MulBps(10_000, 55)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 550 {
		t.Errorf("got %d, want 550", got)
	}
}

func TestMulBps_WidensIntermediate(t *testing.T) {
	// v * bps overflows int64 but the result fits.
	got, err := numeric.MulBps(math.MaxInt64/500, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := math.MaxInt64 / 500 * 500 / 1000
	if got != int64(want) {
		t.Errorf("got %d, want %d", got, want)
	}
}
