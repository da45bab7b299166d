package embedcache

// Trim bounds the total number of embeddings in c to maxTotal, in place, and
// returns c. Entries are visited model by model, hash by hash in sorted
// order; the first maxTotal are kept and the rest deleted. There is no
// recency tracking. A negative bound is treated as zero. Model specs emptied
// by the trim stay present with no entries.
//
// Trim is the only operation in this package that mutates its argument.
func Trim(c Cache, maxTotal int) Cache {
	if maxTotal < 0 {
		maxTotal = 0
	}
	if c.Len() <= maxTotal {
		return c
	}
	left := maxTotal
	for _, spec := range c.sortedSpecs() {
		entries := c[spec]
		for _, hash := range sortedHashes(entries) {
			if left > 0 {
				left--
				continue
			}
			delete(entries, hash)
		}
	}
	return c
}
