package monitor

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/customeros/mailwarden/internal/cache"
	"github.com/customeros/mailwarden/internal/tracing"
)

var (
	lockKey    = cache.Key("monitor", "lock")
	lastRunKey = cache.Key("monitor", "last_run")
	runKey     = cache.Key("monitor", "run")
	runDoneKey = cache.Key("monitor", "run", "done")
	delayedKey = cache.Key("monitor", "delayed")
)

func resultKey(domainID string) string {
	return cache.Key("monitor", "result", domainID)
}

// releaseScript deletes the lock only while it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store keeps the scheduler state in redis:
//
//	mailwarden:monitor:lock              single-writer lock, SET NX with LockTTL
//	mailwarden:monitor:last_run          unix seconds of the last completed run, no expiry
//	mailwarden:monitor:run               unix seconds of the unfinished run, if any
//	mailwarden:monitor:run:done          set of domain ids the unfinished run has completed
//	mailwarden:monitor:result:<domainId> latest MonitoringResult as JSON, ResultTTL
//	mailwarden:monitor:delayed           sorted set of domain ids scored by due time
type Store struct {
	rdb       *redis.Client
	resultTTL time.Duration
	lockTTL   time.Duration
}

func NewStore(rdb *redis.Client, resultTTL, lockTTL time.Duration) *Store {
	if resultTTL <= 0 {
		resultTTL = 7 * 24 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Hour
	}
	return &Store{rdb: rdb, resultTTL: resultTTL, lockTTL: lockTTL}
}

// AcquireLock returns false when another owner holds the lock.
func (s *Store) AcquireLock(ctx context.Context, owner string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.AcquireLock")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	ok, err := s.rdb.SetNX(ctx, lockKey, owner, s.lockTTL).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return false, errors.Wrap(err, "acquire monitor lock")
	}
	return ok, nil
}

func (s *Store) ReleaseLock(ctx context.Context, owner string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.ReleaseLock")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	return errors.Wrap(releaseScript.Run(ctx, s.rdb, []string{lockKey}, owner).Err(), "release monitor lock")
}

func (s *Store) readTime(ctx context.Context, key string) (*time.Time, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	secs, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed %s %q", key, val)
	}
	t := time.Unix(secs, 0).UTC()
	return &t, nil
}

// LastRun returns the start of the last run that covered every domain.
func (s *Store) LastRun(ctx context.Context) (*time.Time, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.LastRun")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	return s.readTime(ctx, lastRunKey)
}

// CurrentRun returns the start of a run that was interrupted before finishing.
func (s *Store) CurrentRun(ctx context.Context) (*time.Time, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.CurrentRun")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	return s.readTime(ctx, runKey)
}

// BeginRun records a new unfinished run and forgets the progress of any previous one.
func (s *Store) BeginRun(ctx context.Context, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.BeginRun")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, runKey, strconv.FormatInt(at.Unix(), 10), 0)
		pipe.Del(ctx, runDoneKey)
		return nil
	})
	return errors.Wrap(err, "begin run")
}

func (s *Store) MarkDomainDone(ctx context.Context, domainID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.MarkDomainDone")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	return errors.Wrap(s.rdb.SAdd(ctx, runDoneKey, domainID).Err(), "mark domain done")
}

// DoneDomains returns the domains the unfinished run has already completed.
func (s *Store) DoneDomains(ctx context.Context) (map[string]bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.DoneDomains")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	ids, err := s.rdb.SMembers(ctx, runDoneKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read run progress")
	}
	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

// FinishRun stamps the run started at startedAt as the last completed run and clears its progress.
func (s *Store) FinishRun(ctx context.Context, startedAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.FinishRun")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, lastRunKey, strconv.FormatInt(startedAt.Unix(), 10), 0)
		pipe.Del(ctx, runKey, runDoneKey)
		return nil
	})
	return errors.Wrap(err, "finish run")
}

func (s *Store) SaveResult(ctx context.Context, result *MonitoringResult) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.SaveResult")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshal monitoring result")
	}
	return errors.Wrap(s.rdb.Set(ctx, resultKey(result.DomainID), data, s.resultTTL).Err(), "save monitoring result")
}

// GetResult returns nil when no result is stored or it has expired.
func (s *Store) GetResult(ctx context.Context, domainID string) (*MonitoringResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.GetResult")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	data, err := s.rdb.Get(ctx, resultKey(domainID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read monitoring result")
	}
	var result MonitoringResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "unmarshal monitoring result")
	}
	return &result, nil
}

// ScheduleCheck queues a single-domain check. Rescheduling a queued domain moves its due time.
func (s *Store) ScheduleCheck(ctx context.Context, domainID string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.ScheduleCheck")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	err := s.rdb.ZAdd(ctx, delayedKey, redis.Z{Score: float64(at.Unix()), Member: domainID}).Err()
	return errors.Wrap(err, "schedule delayed check")
}

// ClaimDue removes and returns the domain ids due at now. An id is returned to exactly one
// caller even when several sweeps run concurrently.
func (s *Store) ClaimDue(ctx context.Context, now time.Time) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.ClaimDue")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	due, err := s.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list due checks")
	}

	var claimed []string
	for _, id := range due {
		removed, err := s.rdb.ZRem(ctx, delayedKey, id).Result()
		if err != nil {
			return claimed, errors.Wrap(err, "claim due check")
		}
		if removed == 1 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

// Pending returns the number of queued delayed checks.
func (s *Store) Pending(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorStore.Pending")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	n, err := s.rdb.ZCard(ctx, delayedKey).Result()
	return n, errors.Wrap(err, "count delayed checks")
}
