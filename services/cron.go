package services

import (
	"time"

	"llm-chatbot/internal/conversation"
	"llm-chatbot/internal/logger"

	"github.com/go-co-op/gocron"
)

const sessionJanitorTag = "session-janitor"

// CronService runs periodic maintenance jobs.
type CronService struct {
	scheduler *gocron.Scheduler
}

func NewCronService() *CronService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &CronService{scheduler: s}
}

// ScheduleSessionJanitor evicts sessions idle for longer than ttl every
// interval. A zero ttl or interval leaves the log unbounded.
func (c *CronService) ScheduleSessionJanitor(log *conversation.Log, ttl, interval time.Duration) error {
	if ttl <= 0 || interval <= 0 {
		logger.Info("Session janitor disabled", "ttl", ttl.String(), "interval", interval.String())
		return nil
	}
	_, err := c.scheduler.Every(interval).Tag(sessionJanitorTag).Do(func() {
		if n := log.EvictIdle(ttl); n > 0 {
			logger.Info("Evicted idle sessions", "count", n, "remaining", log.Sessions())
		}
	})
	return err
}

// Jobs reports how many jobs are scheduled.
func (c *CronService) Jobs() int {
	return len(c.scheduler.Jobs())
}

func (c *CronService) Start() {
	logger.Info("Starting cron service", "jobs", c.Jobs())
	c.scheduler.StartAsync()
}

func (c *CronService) Stop() {
	c.scheduler.Stop()
	logger.Info("Stopped cron service")
}
