package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    RequestStatus
		to      RequestStatus
		allowed bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusExecuting, true}, // режим «выполнить все pending»
		{StatusPending, StatusSuccess, false},
		{StatusApproved, StatusExecuting, true},
		{StatusApproved, StatusPending, true}, // reject возвращает на ревью
		{StatusApproved, StatusFailed, false},
		{StatusExecuting, StatusSuccess, true},
		{StatusExecuting, StatusFailed, true},
		{StatusExecuting, StatusPending, false},
		{StatusFailed, StatusExecuting, true}, // retry
		{StatusFailed, StatusApproved, false},
		{StatusSuccess, StatusExecuting, false}, // терминальный статус
		{StatusSuccess, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			r := &Request{Status: tt.from}
			err := r.CanTransitionTo(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestRemovable(t *testing.T) {
	assert.True(t, (&Request{Status: StatusPending}).Removable())
	assert.True(t, (&Request{Status: StatusApproved}).Removable())
	assert.True(t, (&Request{Status: StatusFailed}).Removable())
	assert.False(t, (&Request{Status: StatusExecuting}).Removable())
	assert.False(t, (&Request{Status: StatusSuccess}).Removable())
}

func TestSucceeded(t *testing.T) {
	assert.True(t, (&ExternalResult{Status: 200}).Succeeded())
	assert.True(t, (&ExternalResult{Status: 201, SysID: "abc"}).Succeeded())
	assert.False(t, (&ExternalResult{Status: 299, Err: "timeout"}).Succeeded())
	assert.False(t, (&ExternalResult{Status: 300}).Succeeded())
	assert.False(t, (&ExternalResult{Status: 404}).Succeeded())
	assert.False(t, (&ExternalResult{Status: 500}).Succeeded())

	var nilResult *ExternalResult
	assert.False(t, nilResult.Succeeded())
}

func TestCloneBody(t *testing.T) {
	body := map[string]any{"name": "ACME", "u_vendor": "{{vendor.sys_id}}"}

	clone := CloneBody(body)
	require.Equal(t, body, clone)

	clone["u_vendor"] = "resolved"
	assert.Equal(t, "{{vendor.sys_id}}", body["u_vendor"])
}
