package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeReconcilePayment JobType = "reconcile_payment"
	JobTypePurgeConcepts    JobType = "purge_concepts"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ReconcilePaymentJobPayload asks for one payment to be checked against the
// gateway again, usually after the sweep could not reach it.
type ReconcilePaymentJobPayload struct {
	PaymentID uint   `json:"payment_id"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

// ToMap converts the payload to a map for storage
func (p ReconcilePaymentJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"payment_id": p.PaymentID,
		"session_id": p.SessionID,
	}
	if p.Reason != "" {
		m["reason"] = p.Reason
	}
	return m
}

// ReconcilePaymentJobPayloadFromMap creates a payload from a map
func ReconcilePaymentJobPayloadFromMap(data map[string]interface{}) (*ReconcilePaymentJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ReconcilePaymentJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// PurgeConceptsJobPayload triggers the retention purge of deleted concepts.
// RequestedAt is the reference time for the retention cutoff.
type PurgeConceptsJobPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

func (p PurgeConceptsJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"requested_at": p.RequestedAt.UTC().Format(time.RFC3339),
	}
}

func PurgeConceptsJobPayloadFromMap(data map[string]interface{}) (*PurgeConceptsJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload PurgeConceptsJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
