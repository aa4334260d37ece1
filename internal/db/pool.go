package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"farewatch/internal/config"
	"farewatch/internal/types"
)

// NewPool builds a pgx connection pool from configuration and verifies
// connectivity with one ping before returning.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create database pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeInternalDB, "database ping failed", err)
	}

	return pool, nil
}

// buildPoolConfig maps pool tuning parameters onto pgxpool's config. The
// connection counts are int in our config for envconfig's sake; pgxpool
// takes int32.
func buildPoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid database url", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	return poolCfg, nil
}

// Probe adapts a pool to the health endpoint's probe contract.
type Probe struct {
	pool *pgxpool.Pool
}

// NewProbe creates a health probe for the given pool.
func NewProbe(pool *pgxpool.Pool) *Probe {
	return &Probe{pool: pool}
}

// Name identifies the probe in health responses.
func (p *Probe) Name() string { return "postgres" }

// Check pings the database with a short deadline.
func (p *Probe) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(pingCtx)
}
