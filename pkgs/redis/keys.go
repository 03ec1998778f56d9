package redis

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const defaultPrefix = "shc"

// KeyBuilder provides methods to generate namespaced Redis keys. Every key
// is scoped to one records contract so several deployments can share a
// Redis instance.
type KeyBuilder struct {
	Prefix   string
	Contract string
}

// checksumAddress converts an Ethereum address to checksummed format (EIP-55).
// If the input is not a valid Ethereum address, it returns the input unchanged.
func checksumAddress(addr string) string {
	if addr == "" {
		return addr
	}
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}

// NewKeyBuilder creates a KeyBuilder for the given contract. An empty prefix
// defaults to "shc".
func NewKeyBuilder(prefix, contract string) *KeyBuilder {
	if prefix == "" {
		prefix = defaultPrefix
	}
	contract = checksumAddress(contract)
	if contract == "" {
		contract = "default"
	}
	return &KeyBuilder{Prefix: prefix, Contract: contract}
}

func (kb *KeyBuilder) base() string {
	return fmt.Sprintf("%s:%s", kb.Prefix, kb.Contract)
}

// Pending slot keys

// PendingSubmission returns the key holding the most recent unmatched
// submission of one account.
func (kb *KeyBuilder) PendingSubmission(account string) string {
	account = checksumAddress(account)
	if account == "" {
		account = "local"
	}
	return fmt.Sprintf("%s:pending:%s", kb.base(), account)
}

// Deduplication keys

// PinnedContent returns the key mapping a content hash to its pinned CID.
func (kb *KeyBuilder) PinnedContent(contentHash string) string {
	return fmt.Sprintf("%s:pinned:%s", kb.base(), strings.ToLower(contentHash))
}

// PinnedContentPattern matches every PinnedContent key.
func (kb *KeyBuilder) PinnedContentPattern() string {
	return fmt.Sprintf("%s:pinned:*", kb.base())
}

// Event keys

// EventChannelPrefix returns the Pub/Sub channel prefix for session events.
func (kb *KeyBuilder) EventChannelPrefix() string {
	return fmt.Sprintf("%s:events", kb.base())
}
