package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector_IncrementalAverage(t *testing.T) {
	c := NewCollector()

	c.ObserveCompleted(100*time.Millisecond, 10)
	c.ObserveCompleted(300*time.Millisecond, 5)

	s := c.Stats()
	assert.Equal(t, int64(2), s.TotalProcessed)
	assert.Equal(t, int64(15), s.TotalUnits)
	// (100 + 300) / 2 = 200ms
	assert.Equal(t, 200*time.Millisecond, s.AvgDuration)
}

func TestCollector_Failed(t *testing.T) {
	c := NewCollector()

	c.ObserveFailed()
	c.ObserveFailed()

	s := c.Stats()
	assert.Equal(t, int64(2), s.TotalFailed)
	assert.Equal(t, int64(0), s.TotalProcessed)
	assert.Equal(t, time.Duration(0), s.AvgDuration, "失败不计入平均耗时")
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ObserveCompleted(100*time.Millisecond, 1)
		}()
	}
	wg.Wait()

	s := c.Stats()
	assert.Equal(t, int64(50), s.TotalProcessed)
	assert.Equal(t, int64(50), s.TotalUnits)
	assert.Equal(t, 100*time.Millisecond, s.AvgDuration)
}
