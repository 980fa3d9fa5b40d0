package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/cache/cachetest"
)

const isolatedJobQueueTestRedisDB = 14

func TestNewQueueWithClient(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueueWithClient(nil, tt.workers)

			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.stopCh)
			assert.NotNil(t, queue.processors)
			assert.False(t, queue.running)
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_stats", JobStatsKey)
	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
}

func newTestQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()
	client := cachetest.NewIsolatedClient(t, isolatedJobQueueTestRedisDB)
	return NewQueueWithClient(client, 1), client
}

// takeJob moves the next job into processing the way a worker does.
func takeJob(t *testing.T, q *Queue) *Job {
	t.Helper()
	job, err := q.dequeueJob(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestQueue_EnqueueJob(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobTypeReconcilePayment, ReconcilePaymentJobPayload{PaymentID: 7}.ToMap())
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	ttl, err := client.TTL(ctx, JobKeyPrefix+job.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobTypeReconcilePayment, stored.Type)

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusPending])
}

func TestQueue_ProcessJob_Success(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var seen uint
	q.Register(JobTypeReconcilePayment, func(_ context.Context, job *Job) error {
		p, err := ReconcilePaymentJobPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		seen = p.PaymentID
		return nil
	})

	enqueued, err := q.EnqueueJob(ctx, JobTypeReconcilePayment, ReconcilePaymentJobPayload{PaymentID: 9}.ToMap())
	require.NoError(t, err)

	job := takeJob(t, q)
	processing, _ := q.GetProcessingSize(ctx)
	assert.Equal(t, int64(1), processing)

	q.processJob(ctx, job)

	assert.Equal(t, uint(9), seen)
	_, err = q.GetJob(ctx, enqueued.ID)
	assert.ErrorIs(t, err, redis.Nil, "completed jobs are removed")
	processing, _ = q.GetProcessingSize(ctx)
	assert.Equal(t, int64(0), processing)
	stats, _ := q.GetJobStats(ctx)
	assert.Equal(t, int64(1), stats[JobStatusCompleted])
}

func TestQueue_ProcessJob_FailureIsRetried(t *testing.T) {
	q, _ := newTestQueue(t)
	q.retryBackoff = 10 * time.Millisecond
	ctx := context.Background()

	q.Register(JobTypeReconcilePayment, func(context.Context, *Job) error {
		return errors.New("gateway timeout")
	})
	enqueued, err := q.EnqueueJob(ctx, JobTypeReconcilePayment, ReconcilePaymentJobPayload{PaymentID: 3}.ToMap())
	require.NoError(t, err)

	q.processJob(ctx, takeJob(t, q))

	stored, err := q.GetJob(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "gateway timeout", stored.ErrorMsg)

	assert.Eventually(t, func() bool {
		size, _ := q.GetQueueSize(ctx)
		return size == 1
	}, time.Second, 10*time.Millisecond, "job should be pushed back after the backoff")
}

func TestQueue_ProcessJob_UnknownTypeFailsPermanently(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	enqueued, err := q.EnqueueJob(ctx, JobType("resize_image"), map[string]interface{}{})
	require.NoError(t, err)

	q.processJob(ctx, takeJob(t, q))

	stored, err := q.GetJob(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMsg, "unknown job type")

	stats, _ := q.GetJobStats(ctx)
	assert.Equal(t, int64(1), stats[JobStatusFailed])
	size, _ := q.GetQueueSize(ctx)
	assert.Equal(t, int64(0), size)
}

func TestQueue_RecoverStuck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	fresh, err := q.EnqueueJob(ctx, JobTypePurgeConcepts, PurgeConceptsJobPayload{RequestedAt: time.Now()}.ToMap())
	require.NoError(t, err)
	stuck, err := q.EnqueueJob(ctx, JobTypePurgeConcepts, PurgeConceptsJobPayload{RequestedAt: time.Now()}.ToMap())
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 2; i++ {
		job := takeJob(t, q)
		job.MarkAsProcessing()
		if job.ID == stuck.ID {
			old := now.Add(-time.Hour)
			job.ProcessedAt = &old
		}
		q.updateJob(ctx, job)
	}

	recovered := q.recoverStuck(ctx, 10*time.Minute, now)
	assert.Equal(t, 1, recovered)

	size, _ := q.GetQueueSize(ctx)
	assert.Equal(t, int64(1), size)
	processing, _ := q.GetProcessingSize(ctx)
	assert.Equal(t, int64(1), processing)

	stored, err := q.GetJob(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
	stored, err = q.GetJob(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusProcessing, stored.Status)
}

func TestQueue_StartStop(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	done := make(chan uint, 1)
	q.Register(JobTypeReconcilePayment, func(_ context.Context, job *Job) error {
		p, _ := ReconcilePaymentJobPayloadFromMap(job.Payload)
		done <- p.PaymentID
		return nil
	})

	q.Start()
	_, err := q.EnqueueJob(ctx, JobTypeReconcilePayment, ReconcilePaymentJobPayload{PaymentID: 11}.ToMap())
	require.NoError(t, err)

	select {
	case id := <-done:
		assert.Equal(t, uint(11), id)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not pick up the job")
	}

	q.Stop()
	assert.False(t, q.running)
	q.Stop()
}
