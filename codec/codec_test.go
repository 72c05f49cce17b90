package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_IntegerIDNormalizesRegardlessOfLiteralForm(t *testing.T) {
	a, err := Parse([]byte(`{"id": 7}`))
	require.NoError(t, err)

	b, err := Parse([]byte(`{"id": 7.0e0}`))
	require.NoError(t, err)

	idA, ok := a.Field("id")
	require.True(t, ok)
	idB, ok := b.Field("id")
	require.True(t, ok)

	assert.Equal(t, KindInt, idA.Kind)
	assert.Equal(t, KindInt, idB.Kind)
	assert.Equal(t, idA.I, idB.I)
}

func TestParse_NonIntegralNumberIsFloat(t *testing.T) {
	v, err := Parse([]byte(`{"x": 1.5}`))
	require.NoError(t, err)

	x, ok := v.Field("x")
	require.True(t, ok)
	assert.Equal(t, KindFloat, x.Kind)
	assert.InDelta(t, 1.5, x.F, 0.0001)
}

func TestParse_ArrayIsEagerAndIndexable(t *testing.T) {
	v, err := Parse([]byte(`[1,2,3]`))
	require.NoError(t, err)

	require.True(t, v.IsArray())
	require.Len(t, v.Arr, 3)
	assert.Equal(t, int64(2), v.Arr[1].I)
}

func TestParse_MalformedPayloadIsTyped(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	require.Error(t, err)

	var mpe *MalformedPayloadError
	require.ErrorAs(t, err, &mpe)
}

func TestParse_RejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestParseMany_RequiresArray(t *testing.T) {
	_, err := ParseMany([]byte(`{"a":1}`))
	require.Error(t, err)

	batch, err := ParseMany([]byte(`[{"a":1},{"b":2}]`))
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestWrite_RoundTripsObject(t *testing.T) {
	v, err := Parse([]byte(`{"jsonrpc":"2.0","id":3,"method":"ping"}`))
	require.NoError(t, err)

	out, err := Write(v)
	require.NoError(t, err)

	back, err := Parse(out)
	require.NoError(t, err)

	id, ok := back.Field("id")
	require.True(t, ok)
	assert.Equal(t, int64(3), id.I)

	method, ok := back.Field("method")
	require.True(t, ok)
	assert.Equal(t, "ping", method.S)
}

func TestWrite_NeverEmitsEmbeddedNewlines(t *testing.T) {
	v, err := Parse([]byte(`{"a":"line1\nline2"}`))
	require.NoError(t, err)

	out, err := Write(v)
	require.NoError(t, err)

	// The only newline allowed is the escaped \n inside the string value.
	assert.NotContains(t, string(out), "\n")
}
