package eth

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/certify/core"
	"github.com/pkg/errors"
)

// ParseAddress accepts a 0x-prefixed, 40 hex digit address in any case.
func ParseAddress(s string) (common.Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, errors.Wrapf(core.ErrInvalidArgument, "address %q must be 0x-prefixed", s)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Wrapf(core.ErrInvalidArgument, "address %q is not a valid address", s)
	}
	return common.HexToAddress(s), nil
}

// ParseAddresses parses every entry, failing on the first malformed one.
func ParseAddresses(ss []string) ([]common.Address, error) {
	out := make([]common.Address, len(ss))
	for i, s := range ss {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
