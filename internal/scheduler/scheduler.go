package scheduler

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/solten/donations/utils"
)

// Scheduler is the minimal surface the payment core needs: one-shot delayed
// tasks and an hourly tick.
type Scheduler interface {
	RunAfter(d time.Duration, task func()) (string, error)
	RunHourly(task func()) (string, error)
}

// GocronScheduler backs the Scheduler interface with a gocron v2 scheduler.
type GocronScheduler struct {
	scheduler gocron.Scheduler
	logger    *utils.Logger
}

func NewGocron(logger *utils.Logger) (*GocronScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	s.Start()

	return &GocronScheduler{scheduler: s, logger: logger}, nil
}

func (g *GocronScheduler) RunAfter(d time.Duration, task func()) (string, error) {
	job, err := g.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(d))),
		gocron.NewTask(task),
	)
	if err != nil {
		return "", err
	}
	return job.ID().String(), nil
}

func (g *GocronScheduler) RunHourly(task func()) (string, error) {
	job, err := g.scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(task),
	)
	if err != nil {
		return "", err
	}
	return job.ID().String(), nil
}

func (g *GocronScheduler) Shutdown() {
	if err := g.scheduler.Shutdown(); err != nil {
		g.logger.Warnf("scheduler shutdown: %v", err)
	}
}
