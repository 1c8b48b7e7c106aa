package eventlogger

import (
	"log"
	"os"
)

type EventLogger struct {
	id     string
	logger *log.Logger
}

func InitEventLogger(id string, logger *log.Logger) *EventLogger {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	el := new(EventLogger)
	el.id = id
	el.logger = logger
	return el
}

// With returns a logger for a sub-component sharing the same output.
func (el *EventLogger) With(id string) *EventLogger {
	return InitEventLogger(id, el.logger)
}

func (el *EventLogger) Logger() *log.Logger {
	return el.logger
}

func (el *EventLogger) Printf(message string, args ...any) {
	el.logger.Printf("%s: "+message, append([]any{el.id}, args...)...)
}

func (el *EventLogger) LogMinimumChanged(previous float64, current float64) {
	el.logger.Printf("%s: Global minimum updated from %v to %v\n", el.id, previous, current)
}

func (el *EventLogger) LogUpdateSent(worker int, value float64) {
	el.logger.Printf("%s: Worker %d sent local minimum %v\n", el.id, worker, value)
}

func (el *EventLogger) LogDrop(linkName string, value float64, reason string) {
	el.logger.Printf("%s: Dropped %v on link %s: %s\n", el.id, value, linkName, reason)
}

func (el *EventLogger) LogLinkClosed(linkName string, err error) {
	el.logger.Printf("%s: Link %s closed: %v\n", el.id, linkName, err)
}

func (el *EventLogger) LogRetired(worker int, reason string) {
	el.logger.Printf("%s: Worker %d retired: %s\n", el.id, worker, reason)
}

func (el *EventLogger) LogRound(round int, activeWorkers int, bestLocal float64, meanLocal float64) {
	el.logger.Printf(
		"%s: Round %d, active workers: %d, best local minimum: %v, mean local minimum: %v\n",
		el.id, round, activeWorkers, bestLocal, meanLocal)
}
