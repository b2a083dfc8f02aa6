package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
)

// Postgres implements Store on PostgreSQL. Expected schema:
//
//	CREATE TABLE readings (
//	    id BIGSERIAL PRIMARY KEY,
//	    city TEXT NOT NULL,
//	    aqi INT NOT NULL,
//	    category TEXT NOT NULL,
//	    pm25 DOUBLE PRECISION, pm10 DOUBLE PRECISION, no2 DOUBLE PRECISION,
//	    so2 DOUBLE PRECISION, co DOUBLE PRECISION, o3 DOUBLE PRECISION,
//	    source TEXT NOT NULL DEFAULT 'upstream',
//	    observed_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX readings_city_observed_idx ON readings (city, observed_at DESC);
//
//	CREATE TABLE subscribers (
//	    id BIGSERIAL PRIMARY KEY,
//	    city TEXT NOT NULL,
//	    threshold INT NOT NULL,
//	    phone TEXT NOT NULL DEFAULT ''
//	);
//
//	CREATE TABLE alert_records (
//	    id UUID PRIMARY KEY,
//	    subscriber_id BIGINT NOT NULL,
//	    city TEXT NOT NULL,
//	    aqi INT NOT NULL,
//	    threshold INT NOT NULL,
//	    outcome TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool for dsn and verifies connectivity.
func NewPostgres(dsn string, maxOpenConns int, connTimeout time.Duration) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// FindLatestByLocation implements Store.
func (p *Postgres) FindLatestByLocation(ctx context.Context, city string) (models.Reading, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT city, aqi, category, pm25, pm10, no2, so2, co, o3, source, observed_at
		FROM readings WHERE city = $1
		ORDER BY observed_at DESC LIMIT 1`, city)

	var r models.Reading
	var pm25, pm10, no2, so2, co, o3 sql.NullFloat64
	var source string
	err := row.Scan(&r.City, &r.AQI, &r.Category, &pm25, &pm10, &no2, &so2, &co, &o3, &source, &r.Timestamp)
	if err == sql.ErrNoRows {
		return models.Reading{}, false, nil
	}
	if err != nil {
		return models.Reading{}, false, fmt.Errorf("query latest reading for %s: %w", city, err)
	}
	r.PM25 = nullToPtr(pm25)
	r.PM10 = nullToPtr(pm10)
	r.NO2 = nullToPtr(no2)
	r.SO2 = nullToPtr(so2)
	r.CO = nullToPtr(co)
	r.O3 = nullToPtr(o3)
	r.Source = models.Source(source)
	return r, true, nil
}

// Save implements Store.
func (p *Postgres) Save(ctx context.Context, r models.Reading) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO readings (city, aqi, category, pm25, pm10, no2, so2, co, o3, source, observed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		r.City, r.AQI, r.Category,
		ptrToNull(r.PM25), ptrToNull(r.PM10), ptrToNull(r.NO2),
		ptrToNull(r.SO2), ptrToNull(r.CO), ptrToNull(r.O3),
		string(r.Source), r.Timestamp)
	if err != nil {
		return fmt.Errorf("insert reading for %s: %w", r.City, err)
	}
	return nil
}

// FindSubscribersForAlert implements Store.
func (p *Postgres) FindSubscribersForAlert(ctx context.Context, city string, aqi int) ([]models.Subscriber, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, city, threshold, phone FROM subscribers
		WHERE city = $1 AND threshold <= $2`, city, aqi)
	if err != nil {
		return nil, fmt.Errorf("query subscribers for %s: %w", city, err)
	}
	defer rows.Close()

	var subs []models.Subscriber
	for rows.Next() {
		var s models.Subscriber
		if err := rows.Scan(&s.ID, &s.City, &s.Threshold, &s.Phone); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// FindSubscriberByID implements Store.
func (p *Postgres) FindSubscriberByID(ctx context.Context, id int64) (models.Subscriber, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, city, threshold, phone FROM subscribers WHERE id = $1`, id)
	var s models.Subscriber
	err := row.Scan(&s.ID, &s.City, &s.Threshold, &s.Phone)
	if err == sql.ErrNoRows {
		return models.Subscriber{}, false, nil
	}
	if err != nil {
		return models.Subscriber{}, false, fmt.Errorf("query subscriber %d: %w", id, err)
	}
	return s, true, nil
}

// SaveAlertRecord implements Store.
func (p *Postgres) SaveAlertRecord(ctx context.Context, rec models.AlertRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO alert_records (id, subscriber_id, city, aqi, threshold, outcome, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.SubscriberID, rec.City, rec.AQI, rec.Threshold, rec.Outcome, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert alert record %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteReadingsBefore implements Store.
func (p *Postgres) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM readings WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old readings: %w", err)
	}
	return res.RowsAffected()
}

// Ping implements Store.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the connection pool. Call during shutdown.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func nullToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func ptrToNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
