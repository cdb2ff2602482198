package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/procq/internal/model"
)

func ev(jobID string, typ model.EventType, progress int) model.Event {
	return model.Event{
		Type:      typ,
		JobID:     jobID,
		Progress:  progress,
		Timestamp: time.Now(),
	}
}

func TestHub_PerJobOrder(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("job-1")
	defer h.Unsubscribe(sub)

	ctx := context.Background()
	h.Publish(ctx, ev("job-1", model.EventQueued, 0))
	h.Publish(ctx, ev("job-1", model.EventProcessing, 10))
	h.Publish(ctx, ev("job-1", model.EventProcessing, 50))
	h.Publish(ctx, ev("job-1", model.EventCompleted, 100))

	var got []model.EventType
	for i := 0; i < 4; i++ {
		e := <-sub.C
		got = append(got, e.Type)
	}
	assert.Equal(t, []model.EventType{
		model.EventQueued, model.EventProcessing, model.EventProcessing, model.EventCompleted,
	}, got, "同一 job 的事件必须按发布顺序投递")
}

func TestHub_OnlySubscribedJobs(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("job-1")
	defer h.Unsubscribe(sub)

	h.Publish(context.Background(), ev("job-2", model.EventQueued, 0))

	select {
	case e := <-sub.C:
		t.Fatalf("不应收到未订阅 job 的事件: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_MultipleSubscribers(t *testing.T) {
	h := NewHub()
	sub1 := h.Subscribe("job-1")
	sub2 := h.Subscribe("job-1")
	defer h.Unsubscribe(sub1)
	defer h.Unsubscribe(sub2)

	h.Publish(context.Background(), ev("job-1", model.EventCompleted, 100))

	e1 := <-sub1.C
	e2 := <-sub2.C
	assert.Equal(t, model.EventCompleted, e1.Type)
	assert.Equal(t, model.EventCompleted, e2.Type, "同一 job 的所有订阅者收到相同事件流")
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("job-1")
	defer h.Unsubscribe(sub)

	// 故意不消费：发布方必须不被阻塞
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriptionBuffer*2; i++ {
			h.Publish(context.Background(), ev("job-1", model.EventProcessing, i))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("慢消费者阻塞了发布方")
	}
}

func TestHub_AddRemove(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("job-1")
	defer h.Unsubscribe(sub)

	h.Add(sub, "job-2")
	h.Publish(context.Background(), ev("job-2", model.EventQueued, 0))
	e := <-sub.C
	require.Equal(t, "job-2", e.JobID)

	h.Remove(sub, "job-2")
	h.Publish(context.Background(), ev("job-2", model.EventProcessing, 10))
	select {
	case e := <-sub.C:
		t.Fatalf("退订后不应再收到事件: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("job-1")

	h.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open, "退订后通道应关闭")
}
