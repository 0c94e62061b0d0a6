package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ride"
)

//go:embed migrations/001_create_rides.sql
var schema string

const rideColumns = `id, rider_id, driver_id, pickup_lat, pickup_lon, drop_lat, drop_lon, category, status, distance, fare, paid, created_at, updated_at`

// PostgresStore writes the ride archive to Postgres. Nothing is loaded from it at startup.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStoreFromDB(db), nil
}

func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the rides table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *PostgresStore) SaveRide(ctx context.Context, s ride.Snapshot) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET driver_id=EXCLUDED.driver_id, status=EXCLUDED.status, fare=EXCLUDED.fare, paid=EXCLUDED.paid, updated_at=EXCLUDED.updated_at`,
		s.ID, s.RiderID, s.DriverID, s.Pickup.Lat, s.Pickup.Lon, s.Drop.Lat, s.Drop.Lon,
		string(s.Category), s.Status.String(), s.Distance, fareValue(s.Fare), s.Paid, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save ride %s: %w", s.ID, err)
	}
	return nil
}

func (p *PostgresStore) Ride(ctx context.Context, id string) (ride.Snapshot, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	s, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ride.Snapshot{}, ErrRideNotFound
	}
	return s, err
}

func (p *PostgresStore) Rides(ctx context.Context) ([]ride.Snapshot, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+rideColumns+` FROM rides ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ride.Snapshot
	for rows.Next() {
		s, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRide(sc scanner) (ride.Snapshot, error) {
	var (
		s        ride.Snapshot
		category string
		status   string
		fare     sql.NullFloat64
	)
	err := sc.Scan(&s.ID, &s.RiderID, &s.DriverID, &s.Pickup.Lat, &s.Pickup.Lon, &s.Drop.Lat, &s.Drop.Lon,
		&category, &status, &s.Distance, &fare, &s.Paid, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return ride.Snapshot{}, err
	}
	s.Category = models.Category(category)
	if err := s.Status.UnmarshalText([]byte(status)); err != nil {
		return ride.Snapshot{}, err
	}
	if fare.Valid {
		f := fare.Float64
		s.Fare = &f
	}
	return s, nil
}

func fareValue(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
