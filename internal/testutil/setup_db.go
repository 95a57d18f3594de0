package testutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// SetupTestDB starts a Postgres container, waits for readiness, applies
// the ledger schema, seeds the singleton pooled wallet row and returns
// the pool plus a teardown function.
func SetupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()
	postgresC, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("pooled_wallet"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("secret"),
	)
	assert.NoError(t, err)

	dbURL, err := postgresC.ConnectionString(ctx, "sslmode=disable")
	assert.NoError(t, err)

	var pool *pgxpool.Pool
	for i := 0; i < 20; i++ {
		pool, err = pgxpool.New(ctx, dbURL)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				break
			}
			pool.Close()
		}
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "[testutil] Postgres did not become ready in time. Container logs:")
		logs, logErr := postgresC.Logs(ctx)
		if logErr == nil {
			io.Copy(os.Stderr, logs)
		} else {
			fmt.Fprintln(os.Stderr, "[testutil] Failed to get container logs:", logErr)
		}
	}
	assert.NoError(t, err, "Postgres did not become ready in time")

	// Schema. Note: no CHECK on balance >= 0; sufficiency is enforced
	// by the ledger engine, not by storage.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pooled_wallets (
			id             SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			balance        DECIMAL(20, 2) NOT NULL DEFAULT 0,
			ledger_balance DECIMAL(20, 2) NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS ledger_transactions (
			id           BIGSERIAL PRIMARY KEY,
			user_id      UUID NOT NULL,
			type         VARCHAR(10) NOT NULL CHECK (type IN ('credit', 'debit')),
			genus        VARCHAR(20) NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			amount       DECIMAL(20, 2) NOT NULL CHECK (amount > 0),
			prev_balance DECIMAL(20, 2) NOT NULL,
			curr_balance DECIMAL(20, 2) NOT NULL,
			confirmed    BOOLEAN NOT NULL DEFAULT TRUE,
			reference    VARCHAR(64) NOT NULL UNIQUE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_transactions_user ON ledger_transactions(user_id);
		INSERT INTO pooled_wallets (id, balance, ledger_balance) VALUES (1, 0, 0)
		ON CONFLICT (id) DO NOTHING;
	`)
	assert.NoError(t, err)

	return pool, func() {
		pool.Close()
		postgresC.Terminate(ctx)
	}
}
