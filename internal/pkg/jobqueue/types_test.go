package jobqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	assert.Equal(t, "reconcile_payment", string(JobTypeReconcilePayment))
	assert.Equal(t, "purge_concepts", string(JobTypePurgeConcepts))
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 2}
	before := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(before))

	job.MarkAsFailed("gateway timeout")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "gateway timeout", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)
	assert.False(t, job.IsRetryable(), "only failed jobs are retryable")

	job.MarkAsFailed("gateway timeout")
	assert.Equal(t, 2, job.RetryCount)
	assert.False(t, job.IsRetryable())

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

// Payloads travel through JSON in Redis, so numbers come back as float64.
func TestReconcilePaymentPayload_FromStoredJob(t *testing.T) {
	job := Job{
		ID:      "j-1",
		Type:    JobTypeReconcilePayment,
		Payload: ReconcilePaymentJobPayload{PaymentID: 42, SessionID: "SP-5-1-abc", Reason: "timeout"}.ToMap(),
	}
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var stored Job
	require.NoError(t, json.Unmarshal(raw, &stored))

	payload, err := ReconcilePaymentJobPayloadFromMap(stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint(42), payload.PaymentID)
	assert.Equal(t, "SP-5-1-abc", payload.SessionID)
	assert.Equal(t, "timeout", payload.Reason)
}

func TestReconcilePaymentPayload_OmitsEmptyReason(t *testing.T) {
	m := ReconcilePaymentJobPayload{PaymentID: 1}.ToMap()
	_, ok := m["reason"]
	assert.False(t, ok)
}

func TestPurgeConceptsPayload_KeepsReferenceTime(t *testing.T) {
	at := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	payload, err := PurgeConceptsJobPayloadFromMap(PurgeConceptsJobPayload{RequestedAt: at}.ToMap())
	require.NoError(t, err)
	assert.True(t, at.Equal(payload.RequestedAt))
}

func TestPayloadFromMap_RejectsWrongTypes(t *testing.T) {
	_, err := ReconcilePaymentJobPayloadFromMap(map[string]interface{}{"payment_id": "forty-two"})
	assert.Error(t, err)
}
