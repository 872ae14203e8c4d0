package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMessageType(t *testing.T) {
	for _, value := range []string{
		"text", "image", "file",
		"invitation", "invitation_accept", "invitation_reject",
		"apply_join", "apply_join_accept", "apply_join_reject",
		"apply_order", "apply_order_accept", "apply_order_reject",
	} {
		parsed, ok := ParseMessageType(value)
		assert.True(t, ok, "expected %q to parse", value)
		assert.Equal(t, MessageType(value), parsed)
	}

	_, ok := ParseMessageType("sticker")
	assert.False(t, ok)
	_, ok = ParseMessageType("")
	assert.False(t, ok)
}

func TestIsPendingWorkflow(t *testing.T) {
	assert.True(t, MessageInvitation.IsPendingWorkflow())
	assert.True(t, MessageApplyJoin.IsPendingWorkflow())
	assert.True(t, MessageApplyOrder.IsPendingWorkflow())

	// Resolved variants and plain chat types are not pending.
	assert.False(t, MessageInvitationAccept.IsPendingWorkflow())
	assert.False(t, MessageApplyJoinReject.IsPendingWorkflow())
	assert.False(t, MessageText.IsPendingWorkflow())
	assert.False(t, MessageImage.IsPendingWorkflow())
}

func TestWorkflowVariants(t *testing.T) {
	tests := []struct {
		pending MessageType
		accept  MessageType
		reject  MessageType
	}{
		{MessageInvitation, MessageInvitationAccept, MessageInvitationReject},
		{MessageApplyJoin, MessageApplyJoinAccept, MessageApplyJoinReject},
		{MessageApplyOrder, MessageApplyOrderAccept, MessageApplyOrderReject},
	}

	for _, tt := range tests {
		accept, ok := tt.pending.AcceptVariant()
		assert.True(t, ok)
		assert.Equal(t, tt.accept, accept)

		reject, ok := tt.pending.RejectVariant()
		assert.True(t, ok)
		assert.Equal(t, tt.reject, reject)
	}

	_, ok := MessageText.AcceptVariant()
	assert.False(t, ok)
	_, ok = MessageInvitationAccept.RejectVariant()
	assert.False(t, ok)
}
