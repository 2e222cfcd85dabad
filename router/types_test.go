package router_test

import (
	"errors"
	"fmt"
	"testing"

	"git.fiblab.net/sim/tilerouting/router"
	"github.com/stretchr/testify/assert"
)

func TestRouteHelpers(t *testing.T) {
	r := &router.Route{
		Coordinates: []router.Coordinate{
			{Latitude: 64.50, Longitude: 40.45},
			{Latitude: 64.52, Longitude: 40.40},
			{Latitude: 64.51, Longitude: 40.48},
		},
		Distance: 3000,
		Duration: 180,
	}
	assert.InDelta(t, 60, r.AverageSpeed(), 1e-9)
	assert.Equal(t, 3, r.WaypointCount())
	assert.False(t, r.IsEmpty())
	sw, ne, ok := r.BoundingBox()
	assert.True(t, ok)
	assert.Equal(t, router.Coordinate{Latitude: 64.50, Longitude: 40.40}, sw)
	assert.Equal(t, router.Coordinate{Latitude: 64.52, Longitude: 40.48}, ne)

	empty := &router.Route{}
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, 0.0, empty.AverageSpeed())
	_, _, ok = empty.BoundingBox()
	assert.False(t, ok)
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		code router.Code
	}{
		{nil, router.CodeOK},
		{fmt.Errorf("open: %w", router.ErrDatabaseNotFound), router.CodeDatabaseNotFound},
		{fmt.Errorf("%w: ring 3", router.ErrNoRoute), router.CodeNoRoute},
		{router.ErrNoTileData, router.CodeNoTileData},
		{fmt.Errorf("tile 14/1/2: %w", router.ErrDataCorrupted), router.CodeDataCorrupted},
		{router.ErrInternal, router.CodeInternal},
		{errors.New("something else"), router.CodeInternal},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, router.CodeOf(c.err), "%v", c.err)
	}
	assert.Equal(t, 2, int(router.CodeNoRoute))
	assert.Equal(t, "no_tile_data", router.CodeNoTileData.String())
}

func TestParseProfile(t *testing.T) {
	p, err := router.ParseProfile("car")
	assert.NoError(t, err)
	assert.Equal(t, router.ProfileCar, p)
	p, err = router.ParseProfile(" Foot ")
	assert.NoError(t, err)
	assert.Equal(t, router.ProfileFoot, p)
	_, err = router.ParseProfile("bike")
	assert.Error(t, err)

	assert.Equal(t, 0, int(router.ProfileCar))
	assert.Equal(t, 1, int(router.ProfileFoot))
	assert.Equal(t, "foot", router.ProfileFoot.String())
}

func TestOptionsValidate(t *testing.T) {
	opts := router.DefaultOptions()
	assert.NoError(t, opts.Validate())
	assert.Equal(t, 14, opts.Zoom)
	assert.Equal(t, 128, opts.CacheCapacity)

	bad := opts
	bad.Zoom = 30
	assert.ErrorIs(t, bad.Validate(), router.ErrInternal)
	bad = opts
	bad.SnapRadius = 0
	assert.ErrorIs(t, bad.Validate(), router.ErrInternal)
}
