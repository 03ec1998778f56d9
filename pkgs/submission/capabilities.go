package submission

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// CapabilitySource answers who may submit extended content.
type CapabilitySource interface {
	IsValidator(ctx context.Context, addr common.Address) (bool, error)
	Owner(ctx context.Context) (common.Address, error)
}

// Capabilities resolves whether a submitter is verified.
type Capabilities struct {
	source CapabilitySource
}

// NewCapabilities wraps source. A nil source treats everyone as unverified.
func NewCapabilities(source CapabilitySource) *Capabilities {
	return &Capabilities{source: source}
}

// IsVerified reports whether addr is a validator or the contract owner.
// Any failure degrades to unverified.
func (c *Capabilities) IsVerified(ctx context.Context, addr common.Address) bool {
	if c == nil || c.source == nil || addr == (common.Address{}) {
		return false
	}

	validator, err := c.source.IsValidator(ctx, addr)
	if err != nil {
		log.WithError(err).WithField("address", addr.Hex()).Warn("Verification check failed")
		return false
	}
	if validator {
		return true
	}

	owner, err := c.source.Owner(ctx)
	if err != nil {
		log.WithError(err).WithField("address", addr.Hex()).Warn("Verification check failed")
		return false
	}
	return owner == addr
}
