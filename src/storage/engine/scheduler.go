package engine

import (
	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"

	"github.com/Blackdeer1524/HeapDB/src"
)

type job struct {
	name     string
	schedule string
	run      func() error
}

// cronLogger routes the scheduler's own messages to the engine logger.
type cronLogger struct {
	log src.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// newScheduler registers every job with a non-empty schedule. A run that
// overlaps the previous run of the same job is skipped.
func newScheduler(log src.Logger, jobs []job) (*cron.Cron, error) {
	logger := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, j := range jobs {
		if j.schedule == "" {
			continue
		}

		_, err := c.AddFunc(j.schedule, func() {
			if err := j.run(); err != nil {
				log.Errorw("background job failed", "job", j.name, "error", err)
				return
			}
			log.Debugw("background job done", "job", j.name)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "schedule %s job %q", j.name, j.schedule)
		}
	}

	return c, nil
}
