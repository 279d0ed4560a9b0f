package fingerprint

import "sort"

// Pair is a pair of cataloged images whose fingerprints fall within the
// duplicate threshold of each other.
type Pair struct {
	A        string // id of the first image
	B        string // id of the second image
	Distance int
}

// IsDuplicate compares a candidate fingerprint against all known
// fingerprints (keyed by image id) and reports the first image within
// thresholdBits, if any.
func IsDuplicate(candidate string, existing map[string]string, thresholdBits int) (string, bool, error) {
	// Stable iteration so repeated calls report the same duplicate.
	ids := make([]string, 0, len(existing))
	for id := range existing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		d, err := Distance(candidate, existing[id])
		if err != nil {
			return "", false, err
		}
		if d <= thresholdBits {
			return id, true, nil
		}
	}
	return "", false, nil
}

// FindAllPairs scans every pair of fingerprints and returns those within
// thresholdBits. O(n^2) over the catalog, which stays small; bucket by
// hash prefix if that ever changes.
func FindAllPairs(hashes map[string]string, thresholdBits int) ([]Pair, error) {
	ids := make([]string, 0, len(hashes))
	for id := range hashes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var pairs []Pair
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			d, err := Distance(hashes[ids[i]], hashes[ids[j]])
			if err != nil {
				return nil, err
			}
			if d <= thresholdBits {
				pairs = append(pairs, Pair{A: ids[i], B: ids[j], Distance: d})
			}
		}
	}
	return pairs, nil
}
