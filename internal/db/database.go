package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrActivityLogUnavailable wraps every failure to read the activity log.
var ErrActivityLogUnavailable = errors.New("activity log unavailable")

const recentActivityLimit = 20

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a pgx connection pool and provides the activity log.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect creates a new DB instance, connects to PostgreSQL, and runs migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := &DB{Pool: pool, logger: logger}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Migrate reads and executes the embedded SQL migration files.
func (db *DB) Migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	db.logger.Info("database migrated")
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// ---------------------------------------------------------------------------
// Activity log
// ---------------------------------------------------------------------------

const activityColumns = `seq, activity_id::text, user_id, url_ref, url_hash, domain, is_phishing,
	COALESCE(threat_type, ''), threat_level, COALESCE(confidence, 0), action_taken,
	COALESCE(country_code, ''), created_at`

func scanActivity(row pgx.Row) (*ActivityEvent, error) {
	var a ActivityEvent
	err := row.Scan(&a.Seq, &a.ActivityID, &a.UserID, &a.URLRef, &a.URLHash, &a.Domain, &a.IsPhishing,
		&a.ThreatType, &a.ThreatLevel, &a.Confidence, &a.ActionTaken, &a.CountryCode, &a.Timestamp)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AppendActivity records an activity and, for threats, bumps the principal's
// per-type and per-country counters in the same transaction.
func (db *DB) AppendActivity(ctx context.Context, in NewActivity) (*ActivityEvent, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	threatLevel := in.ThreatLevel
	if threatLevel == "" {
		threatLevel = "unknown"
	}
	var countryCode *string
	if in.CountryCode != "" {
		countryCode = &in.CountryCode
	}

	ev, err := scanActivity(tx.QueryRow(ctx,
		`INSERT INTO user_activity
		    (activity_id, user_id, url_ref, url_hash, domain, is_phishing, threat_type, threat_level, confidence, action_taken, country_code)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)
		 RETURNING `+activityColumns,
		uuid.NewString(), in.UserID, in.URLRef, in.URLHash, in.Domain, in.IsPhishing, in.ThreatType,
		threatLevel, in.Confidence, in.ActionTaken, countryCode))
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}

	if in.IsPhishing {
		phishing, malware, cryptojacking := threatCounters(in.ThreatType)
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_threat_stats (user_id, phishing_count, malware_count, cryptojacking_count)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id) DO UPDATE SET
			    phishing_count = user_threat_stats.phishing_count + EXCLUDED.phishing_count,
			    malware_count = user_threat_stats.malware_count + EXCLUDED.malware_count,
			    cryptojacking_count = user_threat_stats.cryptojacking_count + EXCLUDED.cryptojacking_count,
			    updated_at = NOW()`,
			in.UserID, phishing, malware, cryptojacking); err != nil {
			return nil, fmt.Errorf("update threat stats: %w", err)
		}

		if in.CountryCode != "" {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_threat_sources (user_id, country_code, country_name, threat_count, phishing_count)
				 VALUES ($1, $2, $3, 1, $4)
				 ON CONFLICT (user_id, country_code) DO UPDATE SET
				    threat_count = user_threat_sources.threat_count + 1,
				    phishing_count = user_threat_sources.phishing_count + EXCLUDED.phishing_count,
				    last_seen = NOW()`,
				in.UserID, in.CountryCode, in.CountryName, phishing); err != nil {
				return nil, fmt.Errorf("update threat sources: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ev, nil
}

// LatestThreat returns the newest threat event for userID with a sequence
// number above afterSeq (0 means no cursor), or (nil, nil) if there is none.
// Older unseen events are skipped, not returned.
func (db *DB) LatestThreat(ctx context.Context, userID string, afterSeq int64) (*ActivityEvent, error) {
	ev, err := scanActivity(db.Pool.QueryRow(ctx,
		`SELECT `+activityColumns+`
		 FROM user_activity
		 WHERE user_id = $1 AND is_phishing AND seq > $2
		 ORDER BY seq DESC
		 LIMIT 1`,
		userID, afterSeq))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActivityLogUnavailable, err)
	}
	return ev, nil
}

// GetUserAnalytics returns recent activity and threat counters for userID.
func (db *DB) GetUserAnalytics(ctx context.Context, userID string) (*UserAnalytics, error) {
	out := &UserAnalytics{
		UserID:           userID,
		RecentActivities: []ActivityEvent{},
		ThreatSources:    []ThreatSource{},
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT `+activityColumns+`
		 FROM user_activity WHERE user_id = $1
		 ORDER BY seq DESC LIMIT $2`,
		userID, recentActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("query recent activity: %w", err)
	}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out.RecentActivities = append(out.RecentActivities, *a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}

	if err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_activity WHERE user_id = $1 AND is_phishing`,
		userID).Scan(&out.TotalThreatsBlocked); err != nil {
		return nil, fmt.Errorf("count threats: %w", err)
	}

	b := &out.ThreatBreakdown
	err = db.Pool.QueryRow(ctx,
		`SELECT phishing_count, malware_count, cryptojacking_count
		 FROM user_threat_stats WHERE user_id = $1`,
		userID).Scan(&b.PhishingCount, &b.MalwareCount, &b.CryptojackingCount)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("query threat stats: %w", err)
	}
	b.TotalCount = b.PhishingCount + b.MalwareCount + b.CryptojackingCount

	srcRows, err := db.Pool.Query(ctx,
		`SELECT country_code, country_name, threat_count, phishing_count, last_seen
		 FROM user_threat_sources WHERE user_id = $1
		 ORDER BY threat_count DESC, country_code`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query threat sources: %w", err)
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var s ThreatSource
		if err := srcRows.Scan(&s.CountryCode, &s.CountryName, &s.ThreatCount, &s.PhishingCount, &s.LastSeen); err != nil {
			return nil, fmt.Errorf("scan threat source: %w", err)
		}
		out.ThreatSources = append(out.ThreatSources, s)
	}
	if err := srcRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threat sources: %w", err)
	}

	return out, nil
}

// threatCounters maps a threat type onto the (phishing, malware, cryptojacking)
// counter increments. Unknown types count toward no bucket.
func threatCounters(threatType string) (phishing, malware, cryptojacking int) {
	switch threatType {
	case "phishing":
		return 1, 0, 0
	case "malware":
		return 0, 1, 0
	case "cryptojacking":
		return 0, 0, 1
	default:
		return 0, 0, 0
	}
}
