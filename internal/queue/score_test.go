package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScore_PriorityLowersScore(t *testing.T) {
	now := time.Now()

	// 同一提交时刻，优先级越高分越低（越先出队）
	assert.Less(t, Score(now, 5, time.Hour), Score(now, 1, time.Hour))
	assert.Equal(t, Score(now, 0, time.Hour), float64(now.UnixMilli()))
}

func TestScore_OnePriorityStepEqualsScale(t *testing.T) {
	now := time.Now()

	// 高一级优先级等价于提前 scale 提交
	early := Score(now.Add(-time.Hour), 1, time.Hour)
	boosted := Score(now, 2, time.Hour)
	assert.Equal(t, early, boosted)
}

func TestScore_EarlierSubmitWinsWithinPriority(t *testing.T) {
	now := time.Now()
	assert.Less(t, Score(now.Add(-time.Second), 3, time.Hour), Score(now, 3, time.Hour))
}
