package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotState_JSONRoundTripKeepsOrderAndNulls(t *testing.T) {
	state := NewSlotState()
	state.Set("site_type", "企业官网")
	state.Set("brand_name", nil)
	state.Set("target_audience", nil)
	state.Set(StateKeyKnowledgeContext, map[string]any{"company_info": map[string]any{"name": "GeoCMS"}})

	raw, err := json.Marshal(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{"site_type":"企业官网","brand_name":null,"target_audience":null,"knowledge_context":{"company_info":{"name":"GeoCMS"}}}`, string(raw))

	var decoded SlotState
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, state.Keys(), decoded.Keys())
	assert.True(t, decoded.Has("brand_name"))
	assert.False(t, decoded.IsFilled("brand_name"))
	assert.Equal(t, "企业官网", decoded.GetString("site_type"))

	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(again))
}

func TestSlotState_ScanValue(t *testing.T) {
	state := NewSlotState()
	state.Set("b", "2")
	state.Set("a", nil)

	v, err := state.Value()
	require.NoError(t, err)

	var scanned SlotState
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, []string{"b", "a"}, scanned.Keys())

	require.NoError(t, scanned.Scan([]byte(`{"x":1}`)))
	assert.Equal(t, []string{"x"}, scanned.Keys())

	require.NoError(t, scanned.Scan(nil))
	assert.Equal(t, 0, scanned.Len())

	assert.Error(t, scanned.Scan(42))
}

func TestSlotState_CloneIsIndependent(t *testing.T) {
	state := NewSlotState()
	state.Set("a", "1")
	clone := state.Clone()
	clone.Set("a", "2")
	clone.Set("b", "3")

	assert.Equal(t, "1", state.GetString("a"))
	assert.False(t, state.Has("b"))
}

func TestSlotState_ZeroValue(t *testing.T) {
	var state SlotState
	assert.Nil(t, state.Keys())
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))

	state.Set("a", "x")
	assert.Equal(t, 1, state.Len())
}
