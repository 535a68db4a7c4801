package logging

import (
	log "github.com/sirupsen/logrus"
	"sync/atomic"
)

// CounterHook tallies warning and error entries so the status service can
// report them without scraping the log file.
type CounterHook struct {
	warnings uint64
	errors   uint64
}

func NewCounterHook() *CounterHook {
	return &CounterHook{}
}

func (ch *CounterHook) Levels() []log.Level {
	return []log.Level{log.WarnLevel, log.ErrorLevel, log.FatalLevel, log.PanicLevel}
}

func (ch *CounterHook) Fire(entry *log.Entry) error {
	switch entry.Level {
	case log.WarnLevel:
		atomic.AddUint64(&ch.warnings, 1)
	default:
		atomic.AddUint64(&ch.errors, 1)
	}
	return nil
}

func (ch *CounterHook) Warnings() uint64 {
	return atomic.LoadUint64(&ch.warnings)
}

func (ch *CounterHook) Errors() uint64 {
	return atomic.LoadUint64(&ch.errors)
}
