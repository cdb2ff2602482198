// Package transform 定义按部署注入的转换函数边界。
// 队列对转换完全不透明：可能很慢、可能失败、通过 Sink 汇报进度。
// OCR 抽取、向量化、机器翻译都以这个接口接入。
package transform

import "context"

// Progress 转换过程中的一次进度汇报。
// Percent 在单次运行内单调不减；Units 是本次新处理的分块/条目数。
type Progress struct {
	Percent int
	Message string
	Units   int
}

// Sink 进度接收口。转换往里发结构化进度事件而不是回调闭包，
// 单测转换时直接断言发出的事件序列即可。
type Sink interface {
	Report(p Progress)
}

// SinkFunc 函数适配器。
type SinkFunc func(p Progress)

func (f SinkFunc) Report(p Progress) { f(p) }

// Transformation 一次完整转换：读 payloadRef 指向的输入，产出 resultRef。
// 返回的错误决定重试行为：
// - 普通错误按重试策略处理（默认全部可重试，直到预算耗尽）；
// - model.Permanent 包装的错误立即判 failed，不重试；
// - *model.DuplicateError 表示处理中发现内容重复，任务转 duplicate 终态。
// ctx 带有看门狗超时，转换应尽量尊重取消。
type Transformation interface {
	Name() string
	Run(ctx context.Context, payloadRef string, sink Sink) (resultRef string, err error)
}

// Func 把裸函数包成 Transformation。
type Func struct {
	TransformName string
	RunFunc       func(ctx context.Context, payloadRef string, sink Sink) (string, error)
}

func (f Func) Name() string { return f.TransformName }

func (f Func) Run(ctx context.Context, payloadRef string, sink Sink) (string, error) {
	return f.RunFunc(ctx, payloadRef, sink)
}
