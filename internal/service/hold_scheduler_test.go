package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHoldExpireTask(t *testing.T) {
	until := time.Date(2026, 3, 10, 18, 15, 0, 0, time.UTC)

	task, opts, err := NewHoldExpireTask("slot-1", until)
	require.NoError(t, err)
	assert.Equal(t, TypeHoldExpire, task.Type())
	assert.Len(t, opts, 4)

	var payload HoldExpirePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "slot-1", payload.SlotID)
	assert.True(t, until.Equal(payload.ReservedUntil))
}

func TestHoldTaskIDIsPerHold(t *testing.T) {
	until := time.Date(2026, 3, 10, 18, 15, 0, 0, time.UTC)

	assert.Equal(t, holdTaskID("slot-1", until), holdTaskID("slot-1", until))
	assert.NotEqual(t, holdTaskID("slot-1", until), holdTaskID("slot-1", until.Add(15*time.Minute)))
	assert.NotEqual(t, holdTaskID("slot-1", until), holdTaskID("slot-2", until))
}
