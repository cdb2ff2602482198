package queue

import "time"

// Score 计算排序分：submit_ms - priority*K，分低者先出队。
// 同优先级按到达时间 FIFO；K（scale）足够大时高优先级严格优先。
// 默认 K=1h：优先级差 1 相当于提前一小时提交。
func Score(submittedAt time.Time, priority int, scale time.Duration) float64 {
	return float64(submittedAt.UnixMilli()) - float64(priority)*float64(scale.Milliseconds())
}
