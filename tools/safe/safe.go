package safe

import (
	"runtime/debug"

	"PPCollab/tools/errs"

	"go.uber.org/zap"
)

// Go 启动一个带 recover 的 goroutine，panic 只记录日志不会拖垮进程
func Go(log *zap.Logger, name string, f func()) {
	go func() {
		defer Recover(log, name, nil)
		f()
	}()
}

// Recover 用在 defer 中；onPanic 可为 nil，收到的是转换后的 CodeError
func Recover(log *zap.Logger, name string, onPanic func(err error)) {
	r := recover()
	if r == nil {
		return
	}
	err := errs.ErrPanic(r)
	if log != nil {
		log.Error("panic recovered",
			zap.String("where", name),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
	if onPanic != nil {
		onPanic(err)
	}
}

// Call 同步执行 f，panic 转成 error 返回
func Call(log *zap.Logger, name string, f func() error) (err error) {
	defer Recover(log, name, func(perr error) { err = perr })
	return f()
}
