// Package logger пишет логи с префиксом сервиса через фоновую горутину, чтобы медленный
// stderr не тормозил хаб и обработчики. При переполненном буфере записи теряются (см. Dropped).
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	bufferSize = 8192
	// slowCall — порог LogDuration на уровне info.
	slowCall = 100 * time.Millisecond
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel понимает debug/trace, info, warn/warning, error; остальное — info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type entry struct {
	msg   string
	flush chan struct{}
}

var (
	prefix  string
	level   atomic.Int32
	dropped atomic.Int64

	queue chan entry
	once  sync.Once

	outMu sync.Mutex
	out   *log.Logger
)

func init() {
	out = log.New(os.Stderr, "", log.LstdFlags)
	level.Store(int32(ParseLevel(os.Getenv("LOG_LEVEL"))))
}

func start() {
	queue = make(chan entry, bufferSize)
	go func() {
		for e := range queue {
			if e.flush != nil {
				close(e.flush)
				continue
			}
			outMu.Lock()
			out.Print(e.msg)
			outMu.Unlock()
		}
	}()
}

func enqueue(l Level, tagText, msg string) {
	if l < Level(level.Load()) {
		return
	}
	once.Do(start)
	var b strings.Builder
	if prefix != "" {
		b.WriteString("[" + prefix + "] ")
	}
	b.WriteString(tagText)
	b.WriteString(msg)
	select {
	case queue <- entry{msg: b.String()}:
	default:
		dropped.Add(1)
	}
}

// SetPrefix задаёт префикс всех последующих записей (имя сервиса). Вызывать до первого лога.
func SetPrefix(p string) {
	prefix = p
}

// SetLevel задаёт уровень из конфигурации; приоритетнее LOG_LEVEL.
func SetLevel(l string) {
	if l != "" {
		level.Store(int32(ParseLevel(l)))
	}
}

// SetOutput перенаправляет вывод (тесты, файл вместо stderr).
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	out = log.New(w, "", 0)
}

// Sync ждёт, пока фоновая горутина выпишет всё, что было в очереди до вызова.
// false — не успели за timeout.
func Sync(timeout time.Duration) bool {
	once.Do(start)
	done := make(chan struct{})
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case queue <- entry{flush: done}:
	case <-t.C:
		return false
	}
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Dropped — сколько записей потеряно из-за полного буфера.
func Dropped() int64 {
	return dropped.Load()
}

func Info(v ...any)                 { enqueue(LevelInfo, "", fmt.Sprint(v...)) }
func Infof(format string, v ...any) { enqueue(LevelInfo, "", fmt.Sprintf(format, v...)) }

func Error(v ...any)                 { enqueue(LevelError, "ERROR: ", fmt.Sprint(v...)) }
func Errorf(format string, v ...any) { enqueue(LevelError, "ERROR: ", fmt.Sprintf(format, v...)) }

// Warnf — не ошибка, но заслуживает внимания (медленный клиент, отказ провайдера).
func Warnf(format string, v ...any) { enqueue(LevelWarn, "WARN: ", fmt.Sprintf(format, v...)) }

func Debugf(format string, v ...any) { enqueue(LevelDebug, "DEBUG: ", fmt.Sprintf(format, v...)) }

// LogDuration пишет имя функции и время выполнения. На уровне info — только вызовы дольше slowCall.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	l := LevelDebug
	if elapsed >= slowCall {
		l = LevelInfo
	}
	enqueue(l, "", fmt.Sprintf("fn=%s duration_ms=%d", fn, elapsed.Milliseconds()))
}

// DeferLogDuration для defer: defer logger.DeferLogDuration("store.SendMessage", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
