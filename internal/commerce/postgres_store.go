package commerce

import (
	"context"
	"database/sql"
	"time"

	"github.com/mbd888/storesync/internal/idgen"
)

// PostgresStore persists commerce data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed commerce store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) UpsertCustomers(ctx context.Context, clientID string, customers []*Customer) error {
	if len(customers) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range customers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO customers (id, client_id, remote_id, first_name, last_name, email, phone,
				last_order_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			ON CONFLICT (client_id, remote_id) DO UPDATE SET
				first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				email = EXCLUDED.email,
				phone = EXCLUDED.phone,
				last_order_at = GREATEST(customers.last_order_at, EXCLUDED.last_order_at),
				updated_at = NOW()`,
			idgen.WithPrefix("cu_"), clientID, c.RemoteID, c.FirstName, c.LastName,
			c.Email, c.Phone, c.LastOrderAt,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) UpsertOrders(ctx context.Context, clientID string, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, o := range orders {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, client_id, remote_id, customer_remote_id, status, total,
				currency, placed_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			ON CONFLICT (client_id, remote_id) DO UPDATE SET
				status = EXCLUDED.status,
				total = EXCLUDED.total,
				currency = EXCLUDED.currency,
				placed_at = EXCLUDED.placed_at,
				updated_at = NOW()`,
			idgen.WithPrefix("or_"), clientID, o.RemoteID, o.CustomerRemoteID,
			o.Status, o.Total, o.Currency, o.PlacedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE customers SET last_order_at = $1, updated_at = NOW()
			WHERE client_id = $2 AND remote_id = $3
			  AND (last_order_at IS NULL OR last_order_at < $1)`,
			o.PlacedAt, clientID, o.CustomerRemoteID,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) UpsertProducts(ctx context.Context, clientID string, products []*Product) error {
	if len(products) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, pr := range products {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, client_id, remote_id, name, sku, price, stock_status,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			ON CONFLICT (client_id, remote_id) DO UPDATE SET
				name = EXCLUDED.name,
				sku = EXCLUDED.sku,
				price = EXCLUDED.price,
				stock_status = EXCLUDED.stock_status,
				updated_at = NOW()`,
			idgen.WithPrefix("pr_"), clientID, pr.RemoteID, pr.Name, pr.SKU,
			pr.Price, pr.StockStatus,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) CountOrders(ctx context.Context, clientID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders WHERE client_id = $1`, clientID).Scan(&count)
	return count, err
}

func (p *PostgresStore) ListDormantCustomers(ctx context.Context, clientID string, cutoff time.Time) ([]*Customer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, client_id, remote_id, first_name, last_name, email, phone,
			last_order_at, created_at, updated_at
		FROM customers
		WHERE client_id = $1 AND (last_order_at IS NULL OR last_order_at < $2)
		ORDER BY created_at`, clientID, cutoff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var dormant []*Customer
	for rows.Next() {
		c := &Customer{}
		var lastOrder sql.NullTime
		err := rows.Scan(&c.ID, &c.ClientID, &c.RemoteID, &c.FirstName, &c.LastName,
			&c.Email, &c.Phone, &lastOrder, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if lastOrder.Valid {
			t := lastOrder.Time
			c.LastOrderAt = &t
		}
		dormant = append(dormant, c)
	}
	return dormant, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
