package client

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists clients in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed client store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const clientColumns = `id, name, email, hashed_password, store_url, consumer_key, consumer_secret,
	api_token_hash, is_active, is_logged_in, last_login_time, sync_status, last_synced_at,
	orders_count, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, c *Client) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.Name, c.Email, c.HashedPassword, c.StoreURL, c.ConsumerKey, c.ConsumerSecret,
		c.TokenHash, c.IsActive, c.IsLoggedIn, c.LastLoginTime, string(c.SyncStatus),
		c.LastSyncedAt, c.OrdersCount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Client, error) {
	return p.scanClient(p.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
}

func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*Client, error) {
	return p.scanClient(p.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE email = $1`, email))
}

func (p *PostgresStore) GetByToken(ctx context.Context, tokenHash string) (*Client, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}
	return p.scanClient(p.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE api_token_hash = $1`, tokenHash))
}

func (p *PostgresStore) Update(ctx context.Context, c *Client) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE clients SET name = $1, store_url = $2, consumer_key = $3, consumer_secret = $4,
			api_token_hash = $5, is_active = $6, is_logged_in = $7, last_login_time = $8,
			orders_count = $9, updated_at = NOW()
		WHERE id = $10`,
		c.Name, c.StoreURL, c.ConsumerKey, c.ConsumerSecret, c.TokenHash,
		c.IsActive, c.IsLoggedIn, c.LastLoginTime, c.OrdersCount, c.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func (p *PostgresStore) UpdateSyncStatus(ctx context.Context, id string, status SyncStatus, syncedAt *time.Time) error {
	var (
		result sql.Result
		err    error
	)
	if syncedAt != nil {
		result, err = p.db.ExecContext(ctx, `
			UPDATE clients SET sync_status = $1, last_synced_at = $2, updated_at = NOW()
			WHERE id = $3`, string(status), *syncedAt, id)
	} else {
		result, err = p.db.ExecContext(ctx, `
			UPDATE clients SET sync_status = $1, updated_at = NOW()
			WHERE id = $2`, string(status), id)
	}
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func (p *PostgresStore) ListSyncEligible(ctx context.Context) ([]*Client, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+clientColumns+` FROM clients
		WHERE is_logged_in = TRUE
		  AND store_url <> '' AND consumer_key <> '' AND consumer_secret <> ''
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var clients []*Client
	for rows.Next() {
		c, err := scanClientRow(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanClient(row *sql.Row) (*Client, error) {
	c, err := scanClientRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func scanClientRow(row rowScanner) (*Client, error) {
	c := &Client{}
	var (
		status       string
		lastLogin    sql.NullTime
		lastSyncedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.HashedPassword, &c.StoreURL,
		&c.ConsumerKey, &c.ConsumerSecret, &c.TokenHash, &c.IsActive, &c.IsLoggedIn,
		&lastLogin, &status, &lastSyncedAt, &c.OrdersCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.SyncStatus = SyncStatus(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		c.LastLoginTime = &t
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		c.LastSyncedAt = &t
	}
	return c, nil
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
