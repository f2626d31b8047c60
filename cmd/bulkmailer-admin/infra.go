package main

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/target/bulkmailer/config"
	"github.com/target/bulkmailer/internal/bootstrap"
)

var errRedisNotConfigured = errors.New("redis not configured; set REDIS_URI, REDIS_SENTINEL_NODES or REDIS_CLUSTER_NODES")

// connectRedisOnly connects the Redis deployment backing the template cache.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectRedisOnly(cmdCtx *commandContext) (redis.UniversalClient, error) {
	cfg := &cmdCtx.Config.Redis
	if !hasRedisConfig(cfg) {
		return nil, errRedisNotConfigured
	}
	if !cmdCtx.Config.Cache.Enabled {
		cmdCtx.Logger.Warn("template cache is disabled in config; inspecting redis anyway")
	}
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: *cfg, Logger: cmdCtx.Logger})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	if cfg == nil {
		return false
	}
	if cfg.UseCluster {
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	}
	if cfg.UseSentinel {
		return len(cfg.SentinelNodes) > 0
	}
	return cfg.URI != ""
}
