package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeDataCompare(t *testing.T) {
	cases := []struct {
		name string
		a, b TypeData
		want int
	}{
		{"null equals null", NullData, NullData, 0},
		{"null sorts below int", NullData, IntData(0), -1},
		{"null sorts below string", NullData, StringData([]byte("a")), -1},
		{"int less", IntData(1), IntData(2), -1},
		{"int greater", IntData(2), IntData(1), 1},
		{"int equal", IntData(5), IntData(5), 0},
		{"string less", StringData([]byte("a")), StringData([]byte("b")), -1},
		{"string equal", StringData([]byte("ab")), StringData([]byte("ab")), 0},
		{"max int sentinel sorts highest", IntData(1000), MaxIntData, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Compare(tc.b))
		})
	}
}

func TestTypeDataCompareMismatchedKindsPanics(t *testing.T) {
	assert.Panics(t, func() {
		IntData(1).Compare(StringData([]byte("1")))
	})
}

func TestTypeDataString(t *testing.T) {
	assert.Equal(t, "0", NullData.String())
	assert.Equal(t, "42", IntData(42).String())
	assert.Equal(t, `"hello"`, StringData([]byte("hello")).String())
}

func TestTypeDataEncodeDecodeRoundTrip(t *testing.T) {
	values := []TypeData{
		NullData,
		IntData(0),
		IntData(123456789),
		StringData([]byte("")),
		StringData([]byte("round trip me")),
	}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, encodeTypeData(&buf, v))
		got, err := decodeTypeData(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		assert.True(t, v.Equals(got), "expected %v, got %v", v, got)
	}
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "INT", TypeInt.String())
	assert.Equal(t, "STRING", TypeString.String())
	assert.Equal(t, 8, TypeInt.FixedWidth())
	assert.Equal(t, stringDescriptorSize, TypeString.FixedWidth())
}
