package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingResult_RetryAfterMinutesJSON(t *testing.T) {
	permanent := ProcessingResult{PhotoID: "p1", Status: ResultStatusError, Error: "No EXIF data found"}
	raw, err := json.Marshal(permanent)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	v, ok := fields["retry_after_minutes"]
	if !ok {
		t.Fatalf("retry_after_minutes missing from %s", raw)
	}
	assert.Equal(t, "null", string(v))

	five := 5
	retryable := ProcessingResult{PhotoID: "p1", Status: ResultStatusError, RetryAfterMinutes: &five}
	raw, err = json.Marshal(retryable)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"retry_after_minutes":5`)

	var back ProcessingResult
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NotNil(t, back.RetryAfterMinutes)
	assert.Equal(t, 5, *back.RetryAfterMinutes)
}
