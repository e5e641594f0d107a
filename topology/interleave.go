package topology

import "c2clat/affinity"

// Interleave reorders cores so that each core is immediately followed by
// its hardware-thread siblings that are also in cores. Groups appear in the
// order of their first member; siblings follow in the order src lists them.
//
// With siblings {0,4} {1,5} {2,6} {3,7}, the list 0..7 becomes
// 0,4,1,5,2,6,3,7.
func Interleave(cores []affinity.CoreID, src SiblingSource) ([]affinity.CoreID, error) {
	present := make(map[affinity.CoreID]bool, len(cores))
	for _, c := range cores {
		present[c] = true
	}

	out := make([]affinity.CoreID, 0, len(cores))
	placed := make(map[affinity.CoreID]bool, len(cores))
	for _, c := range cores {
		if placed[c] {
			continue
		}
		out = append(out, c)
		placed[c] = true

		sibs, err := src.Siblings(c)
		if err != nil {
			return nil, err
		}
		for _, s := range sibs {
			if s != c && present[s] && !placed[s] {
				out = append(out, s)
				placed[s] = true
			}
		}
	}
	return out, nil
}
