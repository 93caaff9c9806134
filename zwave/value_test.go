// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package zwave

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueUnmarshal(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		kind   ValueKind
		number float64
		bool   bool
	}{
		{"integer", `42`, KindNumber, 42, false},
		{"negative float", `-3.5`, KindNumber, -3.5, false},
		{"exponent", `1e3`, KindNumber, 1000, false},
		{"true", `true`, KindBool, 0, true},
		{"false", `false`, KindBool, 0, false},
		{"string", `"on"`, KindOther, 0, false},
		{"numeric string", `"42"`, KindOther, 0, false},
		{"object", `{"a":1}`, KindOther, 0, false},
		{"array", `[1,2]`, KindOther, 0, false},
		{"null", `null`, KindOther, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.json), &v))
			assert.Equal(t, tt.kind, v.Kind)
			assert.Equal(t, tt.number, v.Number)
			assert.Equal(t, tt.bool, v.Bool)
		})
	}
}

func TestValueUnmarshalOutOfRange(t *testing.T) {
	tests := []struct {
		json string
		sign int
	}{
		{`1e400`, 1},
		{`-1e400`, -1},
	}

	for _, tt := range tests {
		t.Run(tt.json, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.json), &v))
			assert.Equal(t, KindNumber, v.Kind)
			assert.True(t, math.IsInf(v.Number, tt.sign), "got %v", v.Number)

			_, err := json.Marshal(v)
			assert.NoError(t, err)
		})
	}
}

func TestValueAbsentIsOther(t *testing.T) {
	var ev struct {
		Value Value `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{}`), &ev))
	assert.Equal(t, KindOther, ev.Value.Kind)
	assert.Equal(t, "undefined", ev.Value.String())
}

func TestValueMarshal(t *testing.T) {
	for _, v := range []Value{NumberValue(21.5), BoolValue(true), OtherValue(`"idle"`), {}} {
		data, err := json.Marshal(v)
		require.NoError(t, err)

		var back Value
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, v.Kind, back.Kind, "kind of %s", data)
	}
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "21.5", NumberValue(21.5).String())
	assert.Equal(t, "false", BoolValue(false).String())
	assert.Equal(t, `{"a":1}`, OtherValue(`{"a":1}`).String())
	assert.Equal(t, "boolean", KindBool.String())
}

func TestKeyUnmarshal(t *testing.T) {
	tests := []struct {
		json string
		want Key
	}{
		{`"currentValue"`, "currentValue"},
		{`65537`, "65537"},
		{`null`, ""},
		{`"Electric_kWh_Consumed"`, "Electric_kWh_Consumed"},
	}

	for _, tt := range tests {
		var k Key
		require.NoError(t, json.Unmarshal([]byte(tt.json), &k), tt.json)
		assert.Equal(t, tt.want, k)
	}

	var k Key
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &k))
}
