package embedcache

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func toyCache() Cache {
	return Cache{
		"fake-model-spec": {
			"fake-hash-1": {0.1, 0.1, 0.1},
			"fake-hash-2": {0.2, 0.2, 0.2},
			"fake-hash-3": {0.3, 0.3, 0.3},
		},
	}
}

func TestCodecRoundTripToyCache(t *testing.T) {
	got, err := Decode(Encode(toyCache()))
	require.NoError(t, err)
	require.Equal(t, toyCache(), got)
}

func TestCodecRoundTripEmptyCache(t *testing.T) {
	got, err := Decode(Encode(Cache{}))
	require.NoError(t, err)
	require.Equal(t, Cache{}, got)

	got, err = Decode(Encode(Cache{"fake-model-spec": {}}))
	require.NoError(t, err)
	require.Equal(t, Cache{"fake-model-spec": {}}, got)
}

func TestCodecRoundTripSpecialCharacters(t *testing.T) {
	c := Cache{
		"gemma:2b":           toyCache()["fake-model-spec"],
		"ollama|gemma:7b":    {"00000000": {1}},
		"openai|ünïcode|x|y": {"ffffffff": {-1}},
	}
	got, err := Decode(Encode(c))
	require.NoError(t, err)
	require.Equal(t, c, got)
}

func TestCodecExactDoubles(t *testing.T) {
	c := Cache{"m": {
		"a": {math.SmallestNonzeroFloat64, math.MaxFloat64, -0.0, math.Inf(1), 1.0 / 3.0},
		"b": {},
	}}
	got, err := Decode(Encode(c))
	require.NoError(t, err)
	require.Equal(t, c["m"]["b"], got["m"]["b"])
	for i, v := range c["m"]["a"] {
		require.Equal(t, math.Float64bits(v), math.Float64bits(got["m"]["a"][i]))
	}
}

func TestCodecDeterministic(t *testing.T) {
	require.Equal(t, Encode(toyCache()), Encode(toyCache()))
}

func TestDecodeZeroLengthIsEmpty(t *testing.T) {
	got, err := Decode(nil)
	require.NoError(t, err)
	require.Equal(t, Cache{}, got)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, 2)
	_, err := Decode(b)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
	require.ErrorIs(t, err, ErrCacheDecode)

	// models without any version field
	b = protowire.AppendTag(nil, fieldModels, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeModel("m", map[string]Embedding{"h": {1}}))
	_, err = Decode(b)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	// a wide varint whose low 32 bits read as 1
	b = protowire.AppendTag(nil, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, 1<<32|1)
	_, err = Decode(b)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeMalformed(t *testing.T) {
	data := Encode(toyCache())
	_, err := Decode(data[:len(data)/2])
	require.ErrorIs(t, err, ErrCacheDecode)

	_, err = Decode([]byte{0xff, 0xff, 0xff})
	require.ErrorIs(t, err, ErrCacheDecode)
}

func TestDecodeMisalignedArrays(t *testing.T) {
	var rec []byte
	rec = protowire.AppendTag(rec, fieldModelName, protowire.BytesType)
	rec = protowire.AppendString(rec, "m")
	rec = protowire.AppendTag(rec, fieldTextHashes, protowire.BytesType)
	rec = protowire.AppendString(rec, "h1")
	rec = protowire.AppendTag(rec, fieldTextHashes, protowire.BytesType)
	rec = protowire.AppendString(rec, "h2")
	rec = protowire.AppendTag(rec, fieldEmbeddings, protowire.BytesType)
	rec = protowire.AppendBytes(rec, encodeEmbedding(Embedding{1}))

	var b []byte
	b = protowire.AppendTag(b, fieldModels, protowire.BytesType)
	b = protowire.AppendBytes(b, rec)
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	_, err := Decode(b)
	require.ErrorIs(t, err, ErrCacheDecode)
}

func TestDecodeUnpackedDoubles(t *testing.T) {
	var emb []byte
	for _, v := range []float64{0.5, 0.25} {
		emb = protowire.AppendTag(emb, fieldValues, protowire.Fixed64Type)
		emb = protowire.AppendFixed64(emb, math.Float64bits(v))
	}
	var rec []byte
	rec = protowire.AppendTag(rec, fieldTextHashes, protowire.BytesType)
	rec = protowire.AppendString(rec, "h")
	rec = protowire.AppendTag(rec, fieldEmbeddings, protowire.BytesType)
	rec = protowire.AppendBytes(rec, emb)
	// name after the arrays: field order on the wire is free
	rec = protowire.AppendTag(rec, fieldModelName, protowire.BytesType)
	rec = protowire.AppendString(rec, "m")

	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, fieldModels, protowire.BytesType)
	b = protowire.AppendBytes(b, rec)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, Cache{"m": {"h": {0.5, 0.25}}}, got)
}
