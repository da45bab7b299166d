package embedcache

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// CodecVersion is written into every encoded cache; Decode rejects others.
const CodecVersion int32 = 1

var (
	ErrCacheDecode        = errors.New("embedding cache decode failed")
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrCacheDecode)
)

// Wire layout (protobuf):
//
//	EmbeddingCache   { repeated ModelCacheRecord models = 1; int32 version = 2; }
//	ModelCacheRecord { string model_name = 5; repeated string text_hashes = 3; repeated Embedding embeddings = 4; }
//	Embedding        { repeated double e = 6; }
//
// text_hashes[i] pairs with embeddings[i].
const (
	fieldModels     protowire.Number = 1
	fieldVersion    protowire.Number = 2
	fieldTextHashes protowire.Number = 3
	fieldEmbeddings protowire.Number = 4
	fieldModelName  protowire.Number = 5
	fieldValues     protowire.Number = 6
)

// Encode serializes the cache. Model specs and hashes are written in sorted
// order, so equal caches encode to equal bytes.
func Encode(c Cache) []byte {
	var b []byte
	for _, spec := range c.sortedSpecs() {
		b = protowire.AppendTag(b, fieldModels, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeModel(spec, c[spec]))
	}
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(CodecVersion)))
	return b
}

func encodeModel(spec ModelSpec, entries map[string]Embedding) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldModelName, protowire.BytesType)
	b = protowire.AppendString(b, string(spec))
	hashes := sortedHashes(entries)
	for _, hash := range hashes {
		b = protowire.AppendTag(b, fieldTextHashes, protowire.BytesType)
		b = protowire.AppendString(b, hash)
	}
	for _, hash := range hashes {
		b = protowire.AppendTag(b, fieldEmbeddings, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeEmbedding(entries[hash]))
	}
	return b
}

func encodeEmbedding(values Embedding) []byte {
	if len(values) == 0 {
		return nil
	}
	packed := make([]byte, 0, 8*len(values))
	for _, v := range values {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	var b []byte
	b = protowire.AppendTag(b, fieldValues, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	return b
}

// Decode parses an encoded cache. Zero-length input is an empty cache, the
// same as a chain that never stored one. Malformed bytes, misaligned
// hash/embedding arrays and unknown versions fail with ErrCacheDecode.
func Decode(data []byte) (Cache, error) {
	out := New()
	if len(data) == 0 {
		return out, nil
	}
	var (
		version    int32
		hasVersion bool
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, decodeErr("cache tag", n)
		}
		data = data[n:]
		switch {
		case num == fieldModels && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, decodeErr("model record", n)
			}
			data = data[n:]
			spec, entries, err := decodeModel(raw)
			if err != nil {
				return nil, err
			}
			merged, ok := out[spec]
			if !ok {
				out[spec] = entries
				continue
			}
			for hash, emb := range entries {
				merged[hash] = emb
			}
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, decodeErr("version", n)
			}
			data = data[n:]
			if v > math.MaxInt32 {
				return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
			}
			version = int32(v)
			hasVersion = true
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, decodeErr("unknown field", n)
			}
			data = data[n:]
		}
	}
	if !hasVersion || version != CodecVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	return out, nil
}

func decodeModel(data []byte) (ModelSpec, map[string]Embedding, error) {
	var (
		name       string
		hashes     []string
		embeddings []Embedding
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", nil, decodeErr("model tag", n)
		}
		data = data[n:]
		switch {
		case num == fieldModelName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", nil, decodeErr("model name", n)
			}
			data = data[n:]
			name = v
		case num == fieldTextHashes && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", nil, decodeErr("text hash", n)
			}
			data = data[n:]
			hashes = append(hashes, v)
		case num == fieldEmbeddings && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return "", nil, decodeErr("embedding", n)
			}
			data = data[n:]
			emb, err := decodeEmbedding(raw)
			if err != nil {
				return "", nil, err
			}
			embeddings = append(embeddings, emb)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return "", nil, decodeErr("unknown model field", n)
			}
			data = data[n:]
		}
	}
	if len(hashes) != len(embeddings) {
		return "", nil, fmt.Errorf("%w: model %q has %d hashes and %d embeddings", ErrCacheDecode, name, len(hashes), len(embeddings))
	}
	entries := make(map[string]Embedding, len(hashes))
	for i, hash := range hashes {
		entries[hash] = embeddings[i]
	}
	return ModelSpec(name), entries, nil
}

// decodeEmbedding accepts both packed and unpacked repeated doubles; writers
// that follow proto2 defaults emit the latter.
func decodeEmbedding(data []byte) (Embedding, error) {
	values := Embedding{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, decodeErr("embedding tag", n)
		}
		data = data[n:]
		switch {
		case num == fieldValues && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, decodeErr("packed values", n)
			}
			data = data[n:]
			if len(packed)%8 != 0 {
				return nil, fmt.Errorf("%w: packed values length %d", ErrCacheDecode, len(packed))
			}
			for len(packed) > 0 {
				v, n := protowire.ConsumeFixed64(packed)
				if n < 0 {
					return nil, decodeErr("packed value", n)
				}
				packed = packed[n:]
				values = append(values, math.Float64frombits(v))
			}
		case num == fieldValues && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, decodeErr("value", n)
			}
			data = data[n:]
			values = append(values, math.Float64frombits(v))
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, decodeErr("unknown embedding field", n)
			}
			data = data[n:]
		}
	}
	return values, nil
}

func decodeErr(what string, n int) error {
	return fmt.Errorf("%w: %s: %w", ErrCacheDecode, what, protowire.ParseError(n))
}
