package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/gracefellowship/tidings/v1/query"
)

// Query topics for the analytics dashboard.
const (
	TopicSummary        = "analytics-summary"
	TopicDailyVisits    = "daily-visits"
	TopicPagePopularity = "page-popularity"
	TopicRecentVisits   = "recent-visits"
	TopicContent        = "content-analytics"
)

const (
	summaryRefetch = time.Minute
	summaryRetries = 3
	recentRefetch  = 30 * time.Second
	contentRefetch = time.Minute
)

// Hooks observes analytics reports through a query client.
type Hooks struct {
	Client  *query.Client
	Reports *Reports
	Logger  *slog.Logger
}

func (h Hooks) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Summary observes the visit summary of the last daysBack days. A failing
// report is retried before the entry settles in error; read the result
// through SummaryOf to show an empty summary instead.
func (h Hooks) Summary(daysBack int, opts ...query.Option) (*query.Observer[Summary], error) {
	key, err := query.NewKey(TopicSummary, daysBack)
	if err != nil {
		return nil, err
	}
	opts = append([]query.Option{query.RefetchInterval(summaryRefetch), query.Retry(summaryRetries)}, opts...)
	return query.Observe(h.Client, key, func(ctx context.Context) (Summary, error) {
		s, err := h.Reports.Summary(ctx, daysBack)
		if err != nil {
			h.logger().Warn("analytics: summary failed", "days", daysBack, "error", err)
			return Summary{}, err
		}
		return s, nil
	}, opts...)
}

// SummaryOf returns the summary held by s, or an empty one when the last
// fetch failed or none has finished.
func SummaryOf(s query.State[Summary]) Summary {
	if s.IsError() || !s.HasData {
		return Summary{TopPages: []PageStat{}}
	}
	return s.Data
}

// DailyVisits observes visits per day over the last daysBack days.
func (h Hooks) DailyVisits(daysBack int, opts ...query.Option) (*query.Observer[[]DailyVisits], error) {
	key, err := query.NewKey(TopicDailyVisits, daysBack)
	if err != nil {
		return nil, err
	}
	return query.Observe(h.Client, key, func(ctx context.Context) ([]DailyVisits, error) {
		return h.Reports.DailyVisits(ctx, daysBack)
	}, opts...)
}

// PagePopularity observes the top pages of the last daysBack days.
func (h Hooks) PagePopularity(daysBack int, opts ...query.Option) (*query.Observer[[]PageStat], error) {
	key, err := query.NewKey(TopicPagePopularity, daysBack)
	if err != nil {
		return nil, err
	}
	return query.Observe(h.Client, key, func(ctx context.Context) ([]PageStat, error) {
		return h.Reports.PagePopularity(ctx, daysBack)
	}, opts...)
}

// RecentVisits observes the latest visits, refreshed every 30 seconds.
func (h Hooks) RecentVisits(limit int, opts ...query.Option) (*query.Observer[[]Visit], error) {
	key, err := query.NewKey(TopicRecentVisits, limit)
	if err != nil {
		return nil, err
	}
	opts = append([]query.Option{query.RefetchInterval(recentRefetch)}, opts...)
	return query.Observe(h.Client, key, func(ctx context.Context) ([]Visit, error) {
		return h.Reports.RecentVisits(ctx, limit)
	}, opts...)
}

// Content observes content counts, refreshed every minute. A failing
// report shows as zero counts.
func (h Hooks) Content(opts ...query.Option) (*query.Observer[Content], error) {
	opts = append([]query.Option{query.RefetchInterval(contentRefetch)}, opts...)
	return query.Observe(h.Client, query.MustKey(TopicContent), func(ctx context.Context) (Content, error) {
		c, err := h.Reports.Content(ctx)
		if err != nil {
			h.logger().Error("analytics: content report failed", "error", err)
			return Content{}, nil
		}
		return c, nil
	}, opts...)
}
