//go:build gossip

package synccoll

// BuildGossipCollection brings up a real gossipsub-backed Collection. Only
// available when built with the 'gossip' tag; see factory_nogossip.go for
// the fallback.
func BuildGossipCollection(cfg GossipConfig) (Collection, error) {
	return NewGossipCollection(cfg)
}
