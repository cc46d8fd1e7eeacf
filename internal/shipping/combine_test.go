package shipping

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCombineSingleVendorPassthrough(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	rates := []Rate{
		{MethodID: "express", Name: "Express", VendorID: vendorID, Cost: 15_00, EtdMinDays: 1, EtdMaxDays: 2},
		{MethodID: "ground", Name: "Ground", VendorID: vendorID, Cost: 5_00, EtdMinDays: 3, EtdMaxDays: 5},
	}

	opts := Combine(map[uuid.UUID][]Rate{vendorID: rates}, []uuid.UUID{vendorID}, "USD")
	require.Len(t, opts, 2)
	require.Equal(t, "express", opts[0].ID)
	require.Equal(t, TierExpress, opts[0].Tier)
	require.NotNil(t, opts[0].VendorRate)
	require.EqualValues(t, 15_00, opts[0].Cost)
}

func TestCombineKeepsOnlyTiersEveryVendorSupports(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	perVendor := map[uuid.UUID][]Rate{
		a: {
			{MethodID: "a-exp", VendorID: a, Cost: 12_00, EtdMinDays: 1, EtdMaxDays: 2},
			{MethodID: "a-std", VendorID: a, Cost: 6_00, EtdMinDays: 3, EtdMaxDays: 5},
		},
		b: {
			{MethodID: "b-std", VendorID: b, Cost: 4_00, EtdMinDays: 2, EtdMaxDays: 4},
		},
	}

	opts := Combine(perVendor, []uuid.UUID{a, b}, "USD")
	require.Len(t, opts, 1)
	require.Equal(t, "combined-standard", opts[0].ID)
	require.EqualValues(t, 10_00, opts[0].Cost)
	require.Equal(t, 2, opts[0].EtdMinDays)
	require.Equal(t, 5, opts[0].EtdMaxDays)
}

func TestCombineDayRangeSpansVendors(t *testing.T) {
	t.Parallel()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	perVendor := map[uuid.UUID][]Rate{
		a: {{MethodID: "a-std", VendorID: a, Cost: 5_00, EtdMinDays: 3, EtdMaxDays: 4}},
		b: {{MethodID: "b-std", VendorID: b, Cost: 4_00, EtdMinDays: 2, EtdMaxDays: 5}},
		c: {{MethodID: "c-std", VendorID: c, Cost: 3_00, EtdMinDays: 4, EtdMaxDays: 4}},
	}

	opts := Combine(perVendor, []uuid.UUID{a, b, c}, "USD")
	require.Len(t, opts, 1)
	require.Equal(t, 2, opts[0].EtdMinDays)
	require.Equal(t, 5, opts[0].EtdMaxDays)
}

func TestCombinePicksCheapestRatePerVendor(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	perVendor := map[uuid.UUID][]Rate{
		a: {
			{MethodID: "a-std-1", VendorID: a, Cost: 7_00, EtdMaxDays: 5},
			{MethodID: "a-std-2", VendorID: a, Cost: 5_00, EtdMaxDays: 4},
		},
		b: {
			{MethodID: "b-std", VendorID: b, Cost: 3_00, EtdMaxDays: 5},
		},
	}

	opts := Combine(perVendor, []uuid.UUID{a, b}, "USD")
	require.Len(t, opts, 1)
	require.EqualValues(t, 8_00, opts[0].Cost)
	require.Equal(t, "a-std-2", opts[0].PerVendor[a].MethodID)
}

func TestCombineNoCommonTier(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	perVendor := map[uuid.UUID][]Rate{
		a: {{MethodID: "a-exp", VendorID: a, Cost: 12_00, EtdMaxDays: 2}},
		b: {{MethodID: "b-eco", VendorID: b, Cost: 2_00, EtdMaxDays: 10}},
	}

	opts := Combine(perVendor, []uuid.UUID{a, b}, "USD")
	require.Empty(t, opts)
}

func TestCombineOrdersFastestFirst(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	perVendor := map[uuid.UUID][]Rate{
		a: {
			{MethodID: "a-exp", VendorID: a, Cost: 12_00, EtdMaxDays: 2},
			{MethodID: "a-eco", VendorID: a, Cost: 2_00, EtdMaxDays: 9},
		},
		b: {
			{MethodID: "b-exp", VendorID: b, Cost: 10_00, EtdMaxDays: 1},
			{MethodID: "b-eco", VendorID: b, Cost: 1_00, EtdMaxDays: 8},
		},
	}

	opts := Combine(perVendor, []uuid.UUID{a, b}, "USD")
	require.Len(t, opts, 2)
	require.Equal(t, TierExpress, opts[0].Tier)
	require.Equal(t, TierEconomy, opts[1].Tier)
}
