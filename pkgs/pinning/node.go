package pinning

import (
	"context"

	"github.com/ASingh442/sikh-historical-chain/pkgs/ipfs"
)

// NodePinner stores files on a self-hosted IPFS node.
type NodePinner struct {
	node *ipfs.Client
}

// NewNodePinner wraps a kubo client.
func NewNodePinner(node *ipfs.Client) *NodePinner {
	return &NodePinner{node: node}
}

func (n *NodePinner) Name() string {
	return n.node.Name()
}

func (n *NodePinner) Pin(ctx context.Context, _ string, data []byte) (string, error) {
	c, err := n.node.AddAndPin(ctx, data)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}
