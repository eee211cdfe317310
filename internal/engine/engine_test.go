package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/HaoYang670/rucat/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr bool
		field   string
	}{
		{"valid", CreateRequest{Name: "e1", EngineType: Spark, Version: "3.5.3"}, false, ""},
		{"empty name", CreateRequest{Name: "", EngineType: Spark, Version: "3.5.3"}, true, "name"},
		{"unknown type", CreateRequest{Name: "e1", EngineType: "Flink", Version: "1.0"}, true, "engine_type"},
		{"unknown version", CreateRequest{Name: "e1", EngineType: Spark, Version: "2.0.0"}, true, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))
			var appErr *apperrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestNewDefaultsConfigs(t *testing.T) {
	t.Parallel()
	now := time.Unix(0, 0).UTC()
	rec := New("id-1", CreateRequest{Name: "e1", EngineType: Spark, Version: "3.5.3"}, now)

	assert.Equal(t, WaitToStart, rec.State)
	assert.NotNil(t, rec.Configs)
	assert.Equal(t, now, rec.CreateTime)
}

func TestDisplayState(t *testing.T) {
	t.Parallel()
	rec := &Record{State: ErrorClean, Reason: "image pull backoff"}
	assert.Equal(t, "ErrorClean: image pull backoff", rec.DisplayState())

	rec2 := &Record{State: Running}
	assert.Equal(t, "Running", rec2.DisplayState())
}

func TestStopTarget(t *testing.T) {
	t.Parallel()
	cases := []struct {
		observed State
		want     State
		ok       bool
	}{
		{WaitToStart, Terminated, true},
		{StartInProgress, WaitToTerminate, true},
		{Running, WaitToTerminate, true},
		{Terminated, "", false},
		{ErrorClean, "", false},
	}
	for _, c := range cases {
		got, ok := StopTarget(c.observed)
		assert.Equal(t, c.ok, ok)
		if ok {
			assert.Equal(t, c.want, got)
		}
	}
}

func TestRestartTarget(t *testing.T) {
	t.Parallel()
	cases := []struct {
		observed State
		want     State
		ok       bool
	}{
		{WaitToTerminate, Running, true},
		{Terminated, WaitToStart, true},
		{Running, "", false},
		{TriggerTermination, "", false},
	}
	for _, c := range cases {
		got, ok := RestartTarget(c.observed)
		assert.Equal(t, c.ok, ok)
		if ok {
			assert.Equal(t, c.want, got)
		}
	}
}
