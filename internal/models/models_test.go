package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceToSymmetricAndZero(t *testing.T) {
	a := Location{Lat: 12.97, Lon: 77.59}
	b := Location{Lat: 12.98, Lon: 77.60}

	assert.Equal(t, 0.0, a.DistanceTo(a))
	assert.InDelta(t, a.DistanceTo(b), b.DistanceTo(a), 1e-12)
	assert.InDelta(t, 0.014142, a.DistanceTo(b), 1e-6)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" SUV ")
	require.NoError(t, err)
	assert.Equal(t, CategorySUV, c)

	_, err = ParseCategory("limo")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestVehicleValidate(t *testing.T) {
	ok := Vehicle{Plate: "KA-01-1234", Category: CategorySedan, Capacity: 4, FarePerUnit: 15}
	require.NoError(t, ok.Validate())

	bad := Vehicle{Category: "boat", FarePerUnit: -1}
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCategory)
	assert.Contains(t, err.Error(), "plate")
	assert.Contains(t, err.Error(), "capacity")
}

func TestRideStatusTextRoundTrip(t *testing.T) {
	b, err := json.Marshal(map[string]RideStatus{"status": StatusEnRouteToPickup})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"EN_ROUTE_TO_PICKUP"}`, string(b))

	var out struct {
		Status RideStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, StatusEnRouteToPickup, out.Status)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"PARKED"}`), &out))
	assert.Equal(t, "UNKNOWN", RideStatus(42).String())
}
