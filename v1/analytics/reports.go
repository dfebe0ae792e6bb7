package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gracefellowship/tidings/v1/storage"
)

const (
	topPagesLimit      = 10
	defaultRecentLimit = 50
	dayFormat          = "2006-01-02"
)

// PageStat counts visits to one page.
type PageStat struct {
	PagePath       string `json:"page_path"`
	TotalVisits    int    `json:"total_visits"`
	UniqueVisitors int    `json:"unique_visitors"`
}

// Summary aggregates visits over a window.
type Summary struct {
	TotalVisits    int        `json:"total_visits"`
	UniqueVisitors int        `json:"unique_visitors"`
	TotalPages     int        `json:"total_pages"`
	AvgDailyVisits float64    `json:"avg_daily_visits"`
	TopPages       []PageStat `json:"top_pages"`
}

// DailyVisits counts visits on one UTC day.
type DailyVisits struct {
	Date           string `json:"date"`
	TotalVisits    int    `json:"total_visits"`
	UniqueVisitors int    `json:"unique_visitors"`
}

// Content counts published content.
type Content struct {
	TotalMinistries int `json:"total_ministries"`
	TotalEvents     int `json:"total_events"`
	ScheduledEvents int `json:"scheduled_events"`
	PostponedEvents int `json:"postponed_events"`
	DoneEvents      int `json:"done_events"`
}

// Reports runs the admin dashboard reports.
type Reports struct {
	db  *sql.DB
	now func() time.Time
}

// NewReports returns Reports reading db.
func NewReports(db *sql.DB) *Reports {
	return &Reports{db: db, now: time.Now}
}

// since returns the start of the UTC day daysBack days ago.
func (r *Reports) since(daysBack int) int64 {
	if daysBack <= 0 {
		daysBack = 1
	}
	y, m, d := r.now().UTC().AddDate(0, 0, -daysBack).Date()
	return storage.ToMillis(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// Summary reports on the last daysBack days.
func (r *Reports) Summary(ctx context.Context, daysBack int) (Summary, error) {
	since := r.since(daysBack)
	var s Summary
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT visitor_id), COUNT(DISTINCT page_path)
		 FROM analytics_visits WHERE visited_at >= ?`, since,
	).Scan(&s.TotalVisits, &s.UniqueVisitors, &s.TotalPages)
	if err != nil {
		return Summary{}, fmt.Errorf("analytics summary: %w", err)
	}
	if daysBack > 0 {
		s.AvgDailyVisits = float64(s.TotalVisits) / float64(daysBack)
	}
	top, err := r.PagePopularity(ctx, daysBack)
	if err != nil {
		return Summary{}, err
	}
	if len(top) > 5 {
		top = top[:5]
	}
	s.TopPages = top
	return s, nil
}

// DailyVisits groups the last daysBack days of visits by UTC date, oldest
// first. Days without visits are omitted.
func (r *Reports) DailyVisits(ctx context.Context, daysBack int) ([]DailyVisits, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date(visited_at / 1000, 'unixepoch') AS day, COUNT(*), COUNT(DISTINCT visitor_id)
		 FROM analytics_visits WHERE visited_at >= ?
		 GROUP BY day ORDER BY day ASC`, r.since(daysBack),
	)
	if err != nil {
		return nil, fmt.Errorf("daily visits: %w", err)
	}
	defer rows.Close()
	out := []DailyVisits{}
	for rows.Next() {
		var d DailyVisits
		if err := rows.Scan(&d.Date, &d.TotalVisits, &d.UniqueVisitors); err != nil {
			return nil, fmt.Errorf("scan daily visits: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PagePopularity returns the ten most visited pages of the last daysBack
// days.
func (r *Reports) PagePopularity(ctx context.Context, daysBack int) ([]PageStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT page_path, COUNT(*) AS visits, COUNT(DISTINCT visitor_id)
		 FROM analytics_visits WHERE visited_at >= ?
		 GROUP BY page_path ORDER BY visits DESC, page_path ASC LIMIT ?`, r.since(daysBack), topPagesLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("page popularity: %w", err)
	}
	defer rows.Close()
	out := []PageStat{}
	for rows.Next() {
		var p PageStat
		if err := rows.Scan(&p.PagePath, &p.TotalVisits, &p.UniqueVisitors); err != nil {
			return nil, fmt.Errorf("scan page popularity: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentVisits returns the latest visits, newest first.
func (r *Reports) RecentVisits(ctx context.Context, limit int) ([]Visit, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, page_path, visitor_id, session_id, user_agent, referrer, visited_at
		 FROM analytics_visits ORDER BY visited_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent visits: %w", err)
	}
	defer rows.Close()
	out := []Visit{}
	for rows.Next() {
		var v Visit
		var at int64
		if err := rows.Scan(&v.ID, &v.PagePath, &v.VisitorID, &v.SessionID, &v.UserAgent, &v.Referrer, &at); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.VisitedAt = storage.FromMillis(at)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Content counts ministries and events by status.
func (r *Reports) Content(ctx context.Context) (Content, error) {
	var c Content
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.db.QueryRowContext(gctx, "SELECT COUNT(*) FROM ministries").Scan(&c.TotalMinistries); err != nil {
			return fmt.Errorf("count ministries: %w", err)
		}
		return nil
	})
	var scheduled, postponed, done, total int
	g.Go(func() error {
		err := r.db.QueryRowContext(gctx,
			`SELECT COUNT(*),
			   COALESCE(SUM(status = 'scheduled'), 0),
			   COALESCE(SUM(status = 'postponed'), 0),
			   COALESCE(SUM(status = 'done'), 0)
			 FROM events`,
		).Scan(&total, &scheduled, &postponed, &done)
		if err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Content{}, err
	}
	c.TotalEvents = total
	c.ScheduledEvents = scheduled
	c.PostponedEvents = postponed
	c.DoneEvents = done
	return c, nil
}

// Day formats t as a report date.
func Day(t time.Time) string {
	return t.UTC().Format(dayFormat)
}
