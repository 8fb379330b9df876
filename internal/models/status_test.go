package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransition(t *testing.T) {
	all := []Status{StatusNew, StatusProcessing, StatusReady, StatusError}
	allowed := map[[2]Status]bool{
		{StatusNew, StatusProcessing}:   true,
		{StatusProcessing, StatusReady}: true,
		{StatusProcessing, StatusError}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_NoBackwardEdges(t *testing.T) {
	assert.False(t, StatusReady.CanTransition(StatusNew))
	assert.False(t, StatusError.CanTransition(StatusNew))
	assert.False(t, StatusReady.CanTransition(StatusProcessing))
	assert.True(t, StatusReady.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestCheckTransition(t *testing.T) {
	require.NoError(t, CheckTransition(StatusNew, StatusProcessing))

	err := CheckTransition(StatusNew, StatusReady)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "new -> ready")
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Ready ")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st)

	_, err = ParseStatus("demo")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPathTo(t *testing.T) {
	assert.Empty(t, PathTo(StatusNew))
	assert.Equal(t, []Status{StatusProcessing}, PathTo(StatusProcessing))
	assert.Equal(t, []Status{StatusProcessing, StatusReady}, PathTo(StatusReady))
	assert.Equal(t, []Status{StatusProcessing, StatusError}, PathTo(StatusError))
}

func TestStatus_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]Status{"status": StatusProcessing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"processing"}`, string(b))

	var out struct {
		Status Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"error"}`), &out))
	assert.Equal(t, StatusError, out.Status)

	_, err = json.Marshal(Status(0))
	assert.Error(t, err)
}
