package kernel_test

import (
	"runtime"
	"testing"

	"github.com/brickingsoft/riotls/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]kernel.Version{
		"6.8.0-45-generic":     {Major: 6, Minor: 8, Patch: 0, Flavor: "-45-generic"},
		"5.10":                 {Major: 5, Minor: 10},
		"5.15.153.1-microsoft": {Major: 5, Minor: 15, Patch: 153, Flavor: ".1-microsoft"},
		"4.19-rc1":             {Major: 4, Minor: 19, Flavor: "-rc1"},
	}
	for release, want := range cases {
		got, err := kernel.Parse(release)
		require.NoError(t, err, release)
		assert.Equal(t, want, got, release)
	}
	_, err := kernel.Parse("linux")
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 1, kernel.Compare(kernel.Version{Major: 6}, kernel.Version{Major: 5, Minor: 19}))
	assert.Equal(t, -1, kernel.Compare(kernel.Version{Major: 5, Minor: 6}, kernel.Version{Major: 5, Minor: 6, Patch: 1}))
	assert.Equal(t, 0, kernel.Compare(kernel.Version{Major: 5, Minor: 6, Flavor: "x"}, kernel.Version{Major: 5, Minor: 6}))
}

func TestGet(t *testing.T) {
	v, err := kernel.Get()
	if runtime.GOOS != "linux" {
		assert.Error(t, err)
		return
	}
	require.NoError(t, err)
	assert.Positive(t, v.Major)
	ok, err := kernel.AtLeast(2, 6)
	require.NoError(t, err)
	assert.True(t, ok)
}
