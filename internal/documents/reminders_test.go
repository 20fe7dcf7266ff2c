package documents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReminderSchedulerRunOnce(t *testing.T) {
	ctx := context.Background()
	svc, rec := newTestService(t, NewMemoryRepository())
	doc := upload(t, svc, "v1")
	due := time.Now().Add(-time.Minute)
	_, err := svc.Submit(ctx, SubmitRequest{DocumentID: doc.ID, ActorID: "owner", Chain: twoReviewerChain(), DueAt: &due})
	require.NoError(t, err)
	rec.take()

	scheduler := NewReminderScheduler(svc, zap.NewNop(), "0 0 9 * * MON-FRI", 0)
	assert.Equal(t, 1, scheduler.RunOnce(ctx))
	assert.Equal(t, []string{"review_reminder:r1"}, kinds(rec.take()))
}

func TestReminderSchedulerStartStop(t *testing.T) {
	svc, _ := newTestService(t, NewMemoryRepository())

	bad := NewReminderScheduler(svc, zap.NewNop(), "not a schedule", time.Second)
	assert.Error(t, bad.Start(context.Background()))

	scheduler := NewReminderScheduler(svc, zap.NewNop(), "*/30 * * * * *", time.Second)
	require.NoError(t, scheduler.Start(context.Background()))
	assert.Error(t, scheduler.Start(context.Background()))
	scheduler.Stop()
	scheduler.Stop()
}
