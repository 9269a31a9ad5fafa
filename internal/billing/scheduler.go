package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Locker grants a named lock to one process at a time
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX
type RedisLocker struct {
	rdb *redis.Client
	log *logrus.Entry
}

// NewRedisLocker creates a RedisLocker
func NewRedisLocker(rdb *redis.Client, log *logrus.Entry) *RedisLocker {
	return &RedisLocker{rdb: rdb, log: log}
}

// TryLock takes key for ttl unless another holder has it
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	release := func() {
		if err := releaseScript.Run(context.Background(), l.rdb, []string{key}, token).Err(); err != nil {
			l.log.WithError(err).WithField("key", key).Warn("Failed to release lock")
		}
	}
	return release, true, nil
}

// Schedule configures Scheduler. A zero interval disables that job.
type Schedule struct {
	HourlyEvery  time.Duration
	RenewalEvery time.Duration
	Hours        int // Hours billed per hourly run
}

// Scheduler invokes the runner periodically. The lock keeps replicas from
// starting the same job at the same time; ledger correctness never depends on it.
type Scheduler struct {
	runner   *Runner
	locker   Locker
	schedule Schedule
	log      *logrus.Entry
}

// NewScheduler creates a Scheduler
func NewScheduler(runner *Runner, locker Locker, schedule Schedule, log *logrus.Entry) *Scheduler {
	if schedule.Hours < 1 {
		schedule.Hours = 1
	}
	return &Scheduler{runner: runner, locker: locker, schedule: schedule, log: log}
}

// Run blocks until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if s.schedule.HourlyEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, jobHourly, s.schedule.HourlyEvery, s.RunHourly)
		}()
	}
	if s.schedule.RenewalEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, jobRenewal, s.schedule.RenewalEvery, s.RunRenewal)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job string, every time.Duration, fn func(ctx context.Context)) {
	s.log.WithFields(logrus.Fields{"job": job, "every": every.String()}).Info("Scheduled job started")
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.locked(ctx, job, every, fn)
		}
	}
}

func (s *Scheduler) locked(ctx context.Context, job string, ttl time.Duration, fn func(ctx context.Context)) {
	release, ok, err := s.locker.TryLock(ctx, "billing:lock:"+job, ttl)
	if err != nil {
		s.log.WithError(err).WithField("job", job).Error("Failed to take job lock")
		return
	}
	if !ok {
		s.log.WithField("job", job).Info("Job already running elsewhere, skipped")
		return
	}
	defer release()
	fn(ctx)
}

// RunHourly runs one hourly billing pass and logs its summary
func (s *Scheduler) RunHourly(ctx context.Context) {
	results, err := s.runner.RunHourlyBilling(ctx, s.schedule.Hours, false)
	if err != nil {
		s.log.WithError(err).Error("Hourly billing run failed")
		return
	}
	sum := SummarizeHourly(results)
	s.log.WithFields(logrus.Fields{
		"total":     sum.Total,
		"succeeded": sum.Succeeded,
		"failed":    sum.Failed,
		"amount":    sum.Charged.StringFixed(2),
	}).Info("Hourly billing summary")
}

// RunRenewal runs one auto-renewal pass and logs its summary
func (s *Scheduler) RunRenewal(ctx context.Context) {
	results, err := s.runner.RunAutoRenewal(ctx, false)
	if err != nil {
		s.log.WithError(err).Error("Auto-renewal run failed")
		return
	}
	sum := SummarizeRenewal(results)
	s.log.WithFields(logrus.Fields{
		"total":     sum.Total,
		"succeeded": sum.Succeeded,
		"failed":    sum.Failed,
		"renewed":   sum.Renewed,
		"suspended": sum.Suspended,
		"amount":    sum.Charged.StringFixed(2),
	}).Info("Auto-renewal summary")
}
