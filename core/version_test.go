package core_test

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/NethermindEth/starknet-replay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlockVersion(t *testing.T) {
	versions := map[string]*semver.Version{
		"":         semver.MustParse("0.0.0"),
		"0.13.1":   semver.MustParse("0.13.1"),
		"0.13.1.1": semver.MustParse("0.13.1"),
		"0.14":     semver.MustParse("0.14.0"),
		"14":       semver.MustParse("14.0.0"),
	}

	for version, expected := range versions {
		t.Run("block version: "+version, func(t *testing.T) {
			got, err := core.ParseBlockVersion(version)
			require.NoError(t, err)
			assert.True(t, expected.Equal(got), "got %s", got)
		})
	}

	for _, version := range []string{"not.a.version", "0.x", "0.13.-1"} {
		_, err := core.ParseBlockVersion(version)
		require.ErrorIs(t, err, core.ErrMalformedVersion, version)
	}
}
