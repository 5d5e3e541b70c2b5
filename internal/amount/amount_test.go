package amount

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBounds(t *testing.T) {
	max, err := Parse("340282366920938463463374607431768211455")
	require.NoError(t, err)
	assert.Equal(t, 0, max.Cmp(Max))

	_, err = Parse("340282366920938463463374607431768211456")
	require.ErrorIs(t, err, ErrOutOfRange)

	for _, bad := range []string{"", "-1", "+1", "1.5", "abc", " 1"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalid, bad)
	}
}

func TestAddOverflow(t *testing.T) {
	sum, ok := New(40).Add(New(2))
	require.True(t, ok)
	assert.Equal(t, "42", sum.String())

	_, ok = Max.Add(New(1))
	assert.False(t, ok)

	same, ok := Max.Add(Zero)
	require.True(t, ok)
	assert.Equal(t, Max, same)
}

func TestSubUnderflow(t *testing.T) {
	diff, ok := New(100).Sub(New(40))
	require.True(t, ok)
	assert.Equal(t, New(60), diff)

	_, ok = New(1).Sub(New(2))
	assert.False(t, ok)
}

func TestMulDiv(t *testing.T) {
	share, ok := MulDiv(New(250), New(1000), New(1000))
	require.True(t, ok)
	assert.Equal(t, New(250), share)

	// the intermediate product needs more than 128 bits
	share, ok = MulDiv(Max, Max, Max)
	require.True(t, ok)
	assert.Equal(t, Max, share)

	_, ok = MulDiv(New(1), New(1), Zero)
	assert.False(t, ok)
}

func TestMin(t *testing.T) {
	assert.Equal(t, New(3), Min(New(3), New(7)))
	assert.Equal(t, New(3), Min(New(7), New(3)))
}

func TestJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		V Amount `json:"v"`
	}{V: Max})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"340282366920938463463374607431768211455"}`, string(raw))

	var fromString, fromNumber Amount
	require.NoError(t, json.Unmarshal([]byte(`"60"`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`60`), &fromNumber))
	assert.Equal(t, New(60), fromString)
	assert.Equal(t, New(60), fromNumber)

	var bad Amount
	assert.Error(t, json.Unmarshal([]byte(`{"unused":1}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`"-5"`), &bad))
}
