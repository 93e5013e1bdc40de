package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/pixter/pixter-backend/internal/logger"
)

// Logger интерфейс для логирования ошибок
type Logger interface {
	Errorf(format string, args ...interface{})
}

// RecoveryHandler обрабатывает panic в горутинах
type RecoveryHandler struct {
	logger Logger
}

// NewRecoveryHandler создает новый обработчик
func NewRecoveryHandler(logger Logger) *RecoveryHandler {
	return &RecoveryHandler{logger: logger}
}

// SafeGo запускает горутину с обработкой panic
func (rh *RecoveryHandler) SafeGo(fn func()) {
	go func() {
		defer rh.recover()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
// Контекст отвязывается от отмены родителя: фоновые задачи (уведомления, письма)
// не должны обрываться вместе с HTTP-запросом.
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	detached := context.WithoutCancel(ctx)
	go func() {
		defer rh.recover()
		fn(detached)
	}()
}

func (rh *RecoveryHandler) recover() {
	if r := recover(); r != nil {
		rh.logger.Errorf("Panic in goroutine: %v\nStack trace:\n%s", r, debug.Stack())
	}
}

// logrusLogger направляет ошибки горутин в общий логгер.
type logrusLogger struct{}

func (logrusLogger) Errorf(format string, args ...interface{}) {
	logger.Log.Errorf(format, args...)
}

// DefaultRecoveryHandler - глобальный обработчик, пишущий в logger.Log
var DefaultRecoveryHandler = NewRecoveryHandler(logrusLogger{})

// SafeGo - упрощенная функция для запуска безопасной горутины
func SafeGo(fn func()) {
	DefaultRecoveryHandler.SafeGo(fn)
}

// SafeGoWithContext - упрощенная функция для запуска безопасной горутины с контекстом
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	DefaultRecoveryHandler.SafeGoWithContext(ctx, fn)
}
