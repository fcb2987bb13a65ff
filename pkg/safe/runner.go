package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"varlixo.com/pkg/logger"
)

// 扫描和入账循环都跑在后台协程里, 一个裸 panic 就等于整个
// 监控进程静默死掉, 所以协程一律从这里起。

// Go 安全启动协程
func Go(fn func()) {
	go func() {
		defer recoverPanic(context.Background())
		fn()
	}()
}

// GoCtx 安全启动携带 context 的协程, 日志里保留链路信息
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer recoverPanic(ctx)
		fn(ctx)
	}()
}

func recoverPanic(ctx context.Context) {
	r := recover()
	if r == nil {
		return
	}
	stack := string(debug.Stack())

	// logger 未初始化时兜底打到标准输出
	if logger.Log != nil {
		logger.Error(ctx, "🚨 GOROUTINE PANIC RECOVERED",
			zap.Any("panic", r),
			zap.String("stack", stack),
		)
	} else {
		fmt.Printf("🚨 GOROUTINE PANIC: %v\nStack: %s\n", r, stack)
	}
}
