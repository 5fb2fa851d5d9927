package health

import (
	"context"
	"database/sql"
	"time"
)

// Pinger is anything that can verify its backend connection.
// *queue.RedisBroker satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a checker that pings the SQL database.
func Database(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return Status{Name: "database", Healthy: false, Detail: err.Error()}
		}
		return Status{Name: "database", Healthy: true}
	}
}

// Broker returns a checker that pings the job broker.
func Broker(p Pinger) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return Status{Name: "broker", Healthy: false, Detail: err.Error()}
		}
		return Status{Name: "broker", Healthy: true}
	}
}
