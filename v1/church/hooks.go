package church

import (
	"context"
	"time"

	"github.com/gracefellowship/tidings/v1/query"
	"github.com/gracefellowship/tidings/v1/storage"
)

// Query topics. Each is the first part of the keys it invalidates.
const (
	TopicEvents         = "events"
	TopicMinistries     = "ministries"
	TopicSermons        = "sermons"
	TopicLatestSermon   = "latest_sermon"
	TopicGallery        = "gallery"
	TopicServiceTimes   = "service_times"
	TopicChurchInfo     = "church_info"
	TopicPastors        = "pastors"
	TopicActivityLogs   = "activity-logs"
	TopicLogSummary     = "log-summary"
	TopicLogActionTypes = "log-action-types"
	TopicLogEntityTypes = "log-entity-types"
)

const (
	logsRefetch       = 30 * time.Second
	logSummaryRefetch = time.Minute
	logTypesRefetch   = 5 * time.Minute
)

// Hooks observes church content through a query client.
type Hooks struct {
	Client *query.Client
	Store  *Store
}

// Events observes all events.
func (h Hooks) Events(opts ...query.Option) (*query.Observer[[]Event], error) {
	return query.Observe(h.Client, query.MustKey(TopicEvents), h.Store.ListEvents, opts...)
}

// Ministries observes all ministries.
func (h Hooks) Ministries(opts ...query.Option) (*query.Observer[[]Ministry], error) {
	return query.Observe(h.Client, query.MustKey(TopicMinistries), h.Store.ListMinistries, opts...)
}

// Sermons observes all sermons.
func (h Hooks) Sermons(opts ...query.Option) (*query.Observer[[]Sermon], error) {
	return query.Observe(h.Client, query.MustKey(TopicSermons), h.Store.ListSermons, opts...)
}

// LatestSermon observes the most recent sermon, nil when there is none.
func (h Hooks) LatestSermon(opts ...query.Option) (*query.Observer[*Sermon], error) {
	return query.Observe(h.Client, query.MustKey(TopicLatestSermon), func(ctx context.Context) (*Sermon, error) {
		s, ok, err := h.Store.LatestSermon(ctx)
		if err != nil || !ok {
			return nil, err
		}
		return &s, nil
	}, opts...)
}

// Gallery observes all gallery images.
func (h Hooks) Gallery(opts ...query.Option) (*query.Observer[[]GalleryImage], error) {
	return query.Observe(h.Client, query.MustKey(TopicGallery), h.Store.ListGallery, opts...)
}

// ServiceTimes observes all service times.
func (h Hooks) ServiceTimes(opts ...query.Option) (*query.Observer[[]ServiceTime], error) {
	return query.Observe(h.Client, query.MustKey(TopicServiceTimes), h.Store.ListServiceTimes, opts...)
}

// ChurchInfo observes the church contact record, nil until it is saved.
func (h Hooks) ChurchInfo(opts ...query.Option) (*query.Observer[*Info], error) {
	return query.Observe(h.Client, query.MustKey(TopicChurchInfo), func(ctx context.Context) (*Info, error) {
		in, ok, err := h.Store.ChurchInfo(ctx)
		if err != nil || !ok {
			return nil, err
		}
		return &in, nil
	}, opts...)
}

// Pastors observes all pastors.
func (h Hooks) Pastors(opts ...query.Option) (*query.Observer[[]Pastor], error) {
	return query.Observe(h.Client, query.MustKey(TopicPastors), h.Store.ListPastors, opts...)
}

func millisOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return storage.ToMillis(t)
}

// Logs observes one filtered page of activity logs, refreshed every 30
// seconds. Each distinct filter is its own entry.
func (h Hooks) Logs(f LogFilter, opts ...query.Option) (*query.Observer[LogPage], error) {
	if f.Limit <= 0 {
		f.Limit = defaultLogLimit
	}
	key, err := query.NewKey(TopicActivityLogs, millisOrZero(f.Start), millisOrZero(f.End),
		f.ActionType, f.EntityType, f.UserID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	opts = append([]query.Option{query.RefetchInterval(logsRefetch)}, opts...)
	return query.Observe(h.Client, key, func(ctx context.Context) (LogPage, error) {
		return h.Store.ListLogs(ctx, f)
	}, opts...)
}

// LogSummary observes log counts by action type, refreshed every minute.
func (h Hooks) LogSummary(opts ...query.Option) (*query.Observer[LogSummary], error) {
	opts = append([]query.Option{query.RefetchInterval(logSummaryRefetch)}, opts...)
	return query.Observe(h.Client, query.MustKey(TopicLogSummary), h.Store.SummarizeLogs, opts...)
}

// LogActionTypes observes the distinct log action types.
func (h Hooks) LogActionTypes(opts ...query.Option) (*query.Observer[[]string], error) {
	opts = append([]query.Option{query.RefetchInterval(logTypesRefetch)}, opts...)
	return query.Observe(h.Client, query.MustKey(TopicLogActionTypes), h.Store.LogActionTypes, opts...)
}

// LogEntityTypes observes the distinct log entity types.
func (h Hooks) LogEntityTypes(opts ...query.Option) (*query.Observer[[]string], error) {
	opts = append([]query.Option{query.RefetchInterval(logTypesRefetch)}, opts...)
	return query.Observe(h.Client, query.MustKey(TopicLogEntityTypes), h.Store.LogEntityTypes, opts...)
}
