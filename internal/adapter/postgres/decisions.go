package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound is returned when no decision exists for a report.
var ErrNotFound = errors.New("decision not found")

// upsertDecision keeps the latest decision per report. Terminal rows are
// never overwritten and a row's tier never goes down.
const upsertDecision = `
INSERT INTO verification_decisions (
    report_id, decision_id, status, tier, confidence, confidence_level,
    severity, hazard_type, lat, lon, place_name, geo_source, flags,
    contributing_sources, score, analyst_id, notes, decided_at, updated_at
) VALUES (
    :report_id, :decision_id, :status, :tier, :confidence, :confidence_level,
    :severity, :hazard_type, :lat, :lon, :place_name, :geo_source, :flags,
    :contributing_sources, :score, :analyst_id, :notes, :decided_at, now()
)
ON CONFLICT (report_id) DO UPDATE SET
    decision_id          = EXCLUDED.decision_id,
    status               = EXCLUDED.status,
    tier                 = EXCLUDED.tier,
    confidence           = EXCLUDED.confidence,
    confidence_level     = EXCLUDED.confidence_level,
    severity             = EXCLUDED.severity,
    hazard_type          = EXCLUDED.hazard_type,
    lat                  = EXCLUDED.lat,
    lon                  = EXCLUDED.lon,
    place_name           = EXCLUDED.place_name,
    geo_source           = EXCLUDED.geo_source,
    flags                = EXCLUDED.flags,
    contributing_sources = EXCLUDED.contributing_sources,
    score                = EXCLUDED.score,
    analyst_id           = EXCLUDED.analyst_id,
    notes                = EXCLUDED.notes,
    decided_at           = EXCLUDED.decided_at,
    updated_at           = now()
WHERE verification_decisions.status = 'pending'
  AND verification_decisions.tier <= EXCLUDED.tier`

const selectDecision = `
SELECT report_id, decision_id, status, tier, confidence, confidence_level,
       severity, hazard_type, lat, lon, place_name, geo_source, flags,
       contributing_sources, score, analyst_id, notes, decided_at
FROM verification_decisions`

// decisionRow is the table shape of a VerificationDecision.
type decisionRow struct {
	ReportID            string          `db:"report_id"`
	DecisionID          uuid.UUID       `db:"decision_id"`
	Status              string          `db:"status"`
	Tier                int             `db:"tier"`
	Confidence          float64         `db:"confidence"`
	ConfidenceLevel     string          `db:"confidence_level"`
	Severity            string          `db:"severity"`
	HazardType          string          `db:"hazard_type"`
	Lat                 sql.NullFloat64 `db:"lat"`
	Lon                 sql.NullFloat64 `db:"lon"`
	PlaceName           string          `db:"place_name"`
	GeoSource           string          `db:"geo_source"`
	Flags               pq.StringArray  `db:"flags"`
	ContributingSources pq.StringArray  `db:"contributing_sources"`
	Score               string          `db:"score"`
	AnalystID           string          `db:"analyst_id"`
	Notes               string          `db:"notes"`
	DecidedAt           time.Time       `db:"decided_at"`
}

func toRow(d domain.VerificationDecision) (decisionRow, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		// Decisions built outside NewDecision may lack an ID.
		id = uuid.New()
	}
	score, err := json.Marshal(d.Score)
	if err != nil {
		return decisionRow{}, fmt.Errorf("encode score: %w", err)
	}
	row := decisionRow{
		ReportID:        d.ReportID,
		DecisionID:      id,
		Status:          string(d.Status),
		Tier:            int(d.Tier),
		Confidence:      d.Confidence,
		ConfidenceLevel: d.ConfidenceLevel,
		Severity:        string(d.Severity),
		HazardType:      d.HazardType,
		PlaceName:       d.PlaceName,
		GeoSource:       d.GeoSource,
		Flags:           pq.StringArray(nonNil(d.Flags)),
		Score:           string(score),
		AnalystID:       d.AnalystID,
		Notes:           d.Notes,
		DecidedAt:       d.Timestamp.UTC(),
	}
	if d.Location != nil {
		row.Lat = sql.NullFloat64{Float64: d.Location.Lat, Valid: true}
		row.Lon = sql.NullFloat64{Float64: d.Location.Lon, Valid: true}
	}
	row.ContributingSources = make(pq.StringArray, 0, len(d.ContributingSources))
	for _, s := range d.ContributingSources {
		row.ContributingSources = append(row.ContributingSources, string(s))
	}
	return row, nil
}

func (r decisionRow) toDecision() (domain.VerificationDecision, error) {
	d := domain.VerificationDecision{
		ID:              r.DecisionID.String(),
		ReportID:        r.ReportID,
		Status:          domain.Status(r.Status),
		Confidence:      r.Confidence,
		ConfidenceLevel: r.ConfidenceLevel,
		Tier:            domain.Tier(r.Tier),
		Flags:           nonNil(r.Flags),
		Severity:        domain.Severity(r.Severity),
		HazardType:      r.HazardType,
		PlaceName:       r.PlaceName,
		GeoSource:       r.GeoSource,
		AnalystID:       r.AnalystID,
		Notes:           r.Notes,
		Timestamp:       r.DecidedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Score), &d.Score); err != nil {
		return domain.VerificationDecision{}, fmt.Errorf("decode score for %s: %w", r.ReportID, err)
	}
	if r.Lat.Valid && r.Lon.Valid {
		d.Location = &domain.Location{Lat: r.Lat.Float64, Lon: r.Lon.Float64}
	}
	d.ContributingSources = make([]domain.SourceType, 0, len(r.ContributingSources))
	for _, s := range r.ContributingSources {
		d.ContributingSources = append(d.ContributingSources, domain.SourceType(s))
	}
	return d, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DecisionRepository stores the latest decision per report. It implements
// pipeline.BatchLoader so it can sit beside the Kafka writer.
type DecisionRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewDecisionRepository creates a repository over db.
func NewDecisionRepository(db *sqlx.DB, logger *slog.Logger) *DecisionRepository {
	return &DecisionRepository{db: db, logger: logger}
}

// LoadBatch decodes decision events and upserts them in one transaction.
func (r *DecisionRepository) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	decisions := make([]domain.VerificationDecision, 0, len(events))
	for _, e := range events {
		var d domain.VerificationDecision
		if err := json.Unmarshal(e.Value, &d); err != nil {
			return fmt.Errorf("decode decision %s: %w", e.Key, err)
		}
		decisions = append(decisions, d)
	}
	return r.Save(ctx, decisions...)
}

// Save upserts decisions in one transaction. Stale updates are ignored.
func (r *DecisionRepository) Save(ctx context.Context, decisions ...domain.VerificationDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareNamedContext(ctx, upsertDecision)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range decisions {
		row, err := toRow(d)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx, row)
		if err != nil {
			return fmt.Errorf("upsert decision %s: %w", d.ReportID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			r.logger.Debug("stale decision ignored", "report_id", d.ReportID, "status", d.Status, "tier", d.Tier)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns the stored decision for a report.
func (r *DecisionRepository) Get(ctx context.Context, reportID string) (domain.VerificationDecision, error) {
	var row decisionRow
	err := r.db.GetContext(ctx, &row, selectDecision+` WHERE report_id = $1`, reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VerificationDecision{}, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	if err != nil {
		return domain.VerificationDecision{}, fmt.Errorf("get decision %s: %w", reportID, err)
	}
	return row.toDecision()
}

// Lookup is Get with a missing decision reported as false instead of an error.
func (r *DecisionRepository) Lookup(ctx context.Context, reportID string) (domain.VerificationDecision, bool, error) {
	d, err := r.Get(ctx, reportID)
	if errors.Is(err, ErrNotFound) {
		return domain.VerificationDecision{}, false, nil
	}
	if err != nil {
		return domain.VerificationDecision{}, false, err
	}
	return d, true, nil
}

// ListByStatus returns up to limit decisions with the given status, newest
// first.
func (r *DecisionRepository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.VerificationDecision, error) {
	var rows []decisionRow
	err := r.db.SelectContext(ctx, &rows, selectDecision+` WHERE status = $1 ORDER BY decided_at DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	out := make([]domain.VerificationDecision, 0, len(rows))
	for _, row := range rows {
		d, err := row.toDecision()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// CheckReadiness pings the database.
func (r *DecisionRepository) CheckReadiness(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
