package scheduler

import (
	"crypto/tls"
	"errors"

	"bbys_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

var errNoRedis = errors.New("REDIS_URL not configured")

// redisOptions parses REDIS_URL. REDIS_TLS_INSECURE skips certificate
// checks, turning TLS on when the URL did not.
func redisOptions(cfg config.SchedulerConfig) (*redis.Options, error) {
	if cfg.GetRedisURL() == "" {
		return nil, errNoRedis
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return opt, nil
}

func asynqRedis(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	opt, err := redisOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

// NewRedisClient opens a go-redis client on the queue's redis. The
// notification send locks live there.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	opt, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}
