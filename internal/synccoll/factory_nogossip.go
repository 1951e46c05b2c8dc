//go:build !gossip

package synccoll

import "errors"

// ErrGossipNotBuilt is returned by BuildGossipCollection when the binary
// was not built with the 'gossip' tag.
var ErrGossipNotBuilt = errors.New("synccoll: built without 'gossip' tag; rebuild with -tags gossip")

// BuildGossipCollection fails in binaries built without the 'gossip' tag,
// mirroring internal/p2p's BuildTransport/'p2p'-tag split.
func BuildGossipCollection(_ GossipConfig) (Collection, error) {
	return nil, ErrGossipNotBuilt
}
