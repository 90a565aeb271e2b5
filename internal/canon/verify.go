package canon

// ChainLink is the minimal view of one event in a per-aggregate chain that
// verification needs.
type ChainLink struct {
	AggregateVersion int64
	EventData        any
	Hash             string
	PrevHash         string
}

// VerifyResult reports whether a chain is intact and, if not, the first
// broken version.
type VerifyResult struct {
	Valid          bool
	BrokenAtVersion int64
}

// VerifyChain replays links (assumed pre-sorted ascending by
// AggregateVersion, starting at 1 with no gaps) and asserts at each step
// that prevHash(n) == hash(n-1) and hash(n) == H(prevHash(n) || data(n)).
// startHash/startVersion let a caller resume from a snapshot rather than
// version 1.
func VerifyChain(h *Hasher, links []ChainLink, startHash string, startVersion int64) (VerifyResult, error) {
	prevHash := startHash
	prevVersion := startVersion
	for _, link := range links {
		if link.AggregateVersion != prevVersion+1 {
			return VerifyResult{Valid: false, BrokenAtVersion: link.AggregateVersion}, nil
		}
		if link.PrevHash != prevHash {
			return VerifyResult{Valid: false, BrokenAtVersion: link.AggregateVersion}, nil
		}
		ok, err := h.VerifyEventHash(link.PrevHash, link.Hash, link.EventData)
		if err != nil {
			return VerifyResult{}, err
		}
		if !ok {
			return VerifyResult{Valid: false, BrokenAtVersion: link.AggregateVersion}, nil
		}
		prevHash = link.Hash
		prevVersion = link.AggregateVersion
	}
	return VerifyResult{Valid: true}, nil
}
