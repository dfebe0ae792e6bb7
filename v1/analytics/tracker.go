// Package analytics records page visits and reports on them.
package analytics

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gracefellowship/tidings/v1/storage"
)

// Visit is one page view.
type Visit struct {
	ID        string    `json:"id"`
	PagePath  string    `json:"page_path"`
	VisitorID string    `json:"visitor_id"`
	SessionID string    `json:"session_id"`
	UserAgent string    `json:"user_agent"`
	Referrer  string    `json:"referrer"`
	VisitedAt time.Time `json:"visited_at"`
}

// Tracker stores page visits.
type Tracker struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker returns a Tracker writing to db.
func NewTracker(db *sql.DB, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{db: db, logger: logger, now: time.Now}
}

// TrackPageVisit records v. Missing visitor and session IDs are generated.
// Tracking must never break a page, so failures are logged and the stored
// visit is returned as far as it was built.
func (t *Tracker) TrackPageVisit(ctx context.Context, v Visit) Visit {
	if strings.TrimSpace(v.PagePath) == "" {
		v.PagePath = "/"
	}
	if v.VisitorID == "" {
		v.VisitorID = uuid.NewString()
	}
	if v.SessionID == "" {
		v.SessionID = uuid.NewString()
	}
	v.ID = uuid.NewString()
	if v.VisitedAt.IsZero() {
		v.VisitedAt = t.now()
	}
	v.VisitedAt = storage.FromMillis(storage.ToMillis(v.VisitedAt))
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO analytics_visits (id, page_path, visitor_id, session_id, user_agent, referrer, visited_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.PagePath, v.VisitorID, v.SessionID, v.UserAgent, v.Referrer, storage.ToMillis(v.VisitedAt),
	)
	if err != nil {
		t.logger.Error("analytics: track page visit failed", "page", v.PagePath, "error", err)
	}
	return v
}
