package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var ErrMalformedVersion = errors.New("malformed protocol version")

// ParseBlockVersion reads the protocol version a block header carries. Missing
// components are zero and a fourth component is ignored, so "0.13" is 0.13.0
// and "0.13.1.1" is 0.13.1. Blocks older than the field have no version and
// parse as 0.0.0.
func ParseBlockVersion(protocolVersion string) (*semver.Version, error) {
	var components [3]uint64
	if protocolVersion == "" {
		return semver.New(0, 0, 0, "", ""), nil
	}

	parts := strings.SplitN(protocolVersion, ".", len(components)+1)
	for i := range min(len(parts), len(components)) {
		n, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrMalformedVersion, protocolVersion, err)
		}
		components[i] = n
	}
	return semver.New(components[0], components[1], components[2], "", ""), nil
}
