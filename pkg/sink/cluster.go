package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Cluster is the storage surface the sink writes against: one
// statement execution for schema init and one bulk write per flush.
// CrateCluster implements it for a real cluster; tests use fakes.
type Cluster interface {
	Exec(ctx context.Context, sql string) error
	BulkInsert(ctx context.Context, sql string, rows [][]any) error
}

// CrateCluster talks to CrateDB over the PostgreSQL wire protocol.
// Owned exclusively by the sink goroutine; nothing else issues writes.
type CrateCluster struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool against the cluster URL
// (postgres://... form).
func Connect(ctx context.Context, url string) (*CrateCluster, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to storage cluster: %w", err)
	}
	return &CrateCluster{pool: pool}, nil
}

func (c *CrateCluster) Exec(ctx context.Context, sql string) error {
	if _, err := c.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	return nil
}

// BulkInsert queues one insert per row and sends them as a single
// batch round trip.
func (c *CrateCluster) BulkInsert(ctx context.Context, sql string, rows [][]any) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(sql, row...)
	}

	results := c.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("bulk insert: %w", err)
		}
	}
	return results.Close()
}

func (c *CrateCluster) Close() {
	c.pool.Close()
}
