package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
	}{
		{"3", 30_000},
		{"1.5", 15_000},
		{"-0.25", -2_500},
		{"+2.00009", 20_000},
		{".5", 5_000},
		{"1e2", 1_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseQuantity("abc")
	assert.Error(t, err)
	_, err = ParseQuantity(" ")
	assert.Error(t, err)
}

func TestQuantity_JSON(t *testing.T) {
	var v struct {
		A Quantity `json:"a"`
		B Quantity `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1.25, "b": "-3"}`), &v))
	assert.Equal(t, Quantity(12_500), v.A)
	assert.Equal(t, "-3.0000", v.B.String())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1.25, "b": -3}`, string(out))
}
