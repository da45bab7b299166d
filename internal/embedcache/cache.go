package embedcache

import (
	"sort"
)

// ModelSpec partitions the cache: "<service>|<model>". It is compared as an
// opaque string and never parsed.
type ModelSpec string

func NewModelSpec(service, model string) ModelSpec {
	return ModelSpec(service + "|" + model)
}

type Embedding = []float64

// Cache maps model spec -> content hash -> embedding.
type Cache map[ModelSpec]map[string]Embedding

func New() Cache {
	return Cache{}
}

func (c Cache) Get(spec ModelSpec, hash string) (Embedding, bool) {
	entries, ok := c[spec]
	if !ok {
		return nil, false
	}
	emb, ok := entries[hash]
	return emb, ok
}

func (c Cache) Put(spec ModelSpec, hash string, emb Embedding) {
	entries, ok := c[spec]
	if !ok {
		entries = make(map[string]Embedding)
		c[spec] = entries
	}
	entries[hash] = emb
}

// Len is the total number of embeddings across all model specs.
func (c Cache) Len() int {
	total := 0
	for _, entries := range c {
		total += len(entries)
	}
	return total
}

// Clone copies the maps; embedding slices are shared.
func (c Cache) Clone() Cache {
	out := make(Cache, len(c))
	for spec, entries := range c {
		copied := make(map[string]Embedding, len(entries))
		for hash, emb := range entries {
			copied[hash] = emb
		}
		out[spec] = copied
	}
	return out
}

func (c Cache) sortedSpecs() []ModelSpec {
	specs := make([]ModelSpec, 0, len(c))
	for spec := range c {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i] < specs[j] })
	return specs
}

func sortedHashes(entries map[string]Embedding) []string {
	hashes := make([]string, 0, len(entries))
	for hash := range entries {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)
	return hashes
}

type ModelSummary struct {
	Spec    ModelSpec
	Entries int
	// Dims lists the distinct embedding lengths in ascending order. More than
	// one value means the partition mixes models.
	Dims []int
}

// Summarize describes every model partition of c in spec order.
func Summarize(c Cache) []ModelSummary {
	out := make([]ModelSummary, 0, len(c))
	for _, spec := range c.sortedSpecs() {
		seen := make(map[int]struct{})
		for _, emb := range c[spec] {
			seen[len(emb)] = struct{}{}
		}
		dims := make([]int, 0, len(seen))
		for d := range seen {
			dims = append(dims, d)
		}
		sort.Ints(dims)
		out = append(out, ModelSummary{Spec: spec, Entries: len(c[spec]), Dims: dims})
	}
	return out
}
