package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/azhengyongqin/procq/internal/dedup"
	"github.com/azhengyongqin/procq/internal/logger"
	"github.com/azhengyongqin/procq/internal/model"
	"github.com/azhengyongqin/procq/internal/notify"
	"github.com/azhengyongqin/procq/internal/queue"
	"github.com/azhengyongqin/procq/internal/stats"
	"github.com/azhengyongqin/procq/internal/store"
	"github.com/azhengyongqin/procq/internal/transform"
	"github.com/azhengyongqin/procq/internal/worker"
)

// 纯内存的端到端演示：提交几个任务（含一个重复提交），
// 订阅其中一个任务的事件流，等全部到达终态后打印统计。
func main() {
	if err := loadEnvFile(); err != nil {
		log.Printf("警告: 无法加载 .env 文件: %v（将使用默认值）", err)
	}

	if err := logger.Init(false); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()
	logger.SetLevel("warn")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	qs := queue.NewMemoryStore(time.Hour, time.Hour)
	defer qs.Close()

	results := store.NewMemoryStore()
	guard := dedup.NewGuard(dedup.NewMemoryClaims(), results, time.Hour)
	hub := notify.NewHub()
	notifier := notify.Multi{hub}
	manager := queue.NewManager(qs, guard, notifier)
	collector := stats.NewCollector()

	dir, err := os.MkdirTemp("", "procq-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	payloads, err := store.NewPayloadDir(dir)
	if err != nil {
		log.Fatal(err)
	}

	// 演示用转换：分三步汇报进度
	demo := transform.Func{
		TransformName: "demo-extract",
		RunFunc: func(ctx context.Context, payloadRef string, sink transform.Sink) (string, error) {
			for _, pct := range []int{10, 50, 100} {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(50 * time.Millisecond):
				}
				sink.Report(transform.Progress{Percent: pct, Message: fmt.Sprintf("step %d%%", pct), Units: 3})
			}
			return "result://" + filepath.Base(payloadRef), nil
		},
	}

	pool := worker.NewPool(qs, guard, notifier, demo, results, payloads, collector, worker.Options{
		Workers:        2,
		Retry:          worker.RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		DequeueTimeout: 200 * time.Millisecond,
		TaskTimeout:    time.Minute,
	})
	pool.Start(ctx)

	submit := func(content string, priority int) *model.Task {
		ref, fp, err := payloads.Save(strings.NewReader(content))
		if err != nil {
			log.Fatal(err)
		}
		task, depth, err := manager.Submit(ctx, queue.SubmitRequest{
			PayloadRef:         ref,
			ContentFingerprint: fp,
			Priority:           priority,
		})
		var de *model.DuplicateError
		if errors.As(err, &de) {
			fmt.Printf("重复提交被拒: existing=%s result=%s\n", de.ExistingTaskID, de.ResultRef)
			return nil
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("已提交 %s priority=%d depth=%d\n", task.ID, priority, depth)
		return task
	}

	first := submit("第一篇文档", 1)
	second := submit("加急文档", 5)
	submit("第一篇文档", 1) // 同内容重复提交，同步拿到 duplicate

	// 订阅加急任务的事件流
	sub := hub.Subscribe(second.ID)
	go func() {
		for ev := range sub.C {
			fmt.Printf("  [事件] %s job=%s progress=%d%%\n", ev.WireType(), ev.JobID, ev.Progress)
		}
	}()

	for _, task := range []*model.Task{first, second} {
		waitTerminal(ctx, qs, task.ID)
	}
	hub.Unsubscribe(sub)

	snap := collector.Stats()
	fmt.Printf("\n统计: 完成=%d 失败=%d 单元=%d 平均耗时=%s\n",
		snap.TotalProcessed, snap.TotalFailed, snap.TotalUnits, snap.AvgDuration)

	cancel()
	pool.Wait()
}

func waitTerminal(ctx context.Context, qs queue.Store, id string) {
	for {
		task, err := qs.GetStatus(ctx, id)
		if err == nil && task.Status.Terminal() {
			fmt.Printf("任务 %s 终态=%s result=%s\n", id, task.Status, task.ResultRef)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// loadEnvFile 从当前目录向上找 .env
func loadEnvFile() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err == nil {
			return godotenv.Load(p)
		}
		dir = filepath.Dir(dir)
	}
	return fmt.Errorf(".env 未找到")
}
