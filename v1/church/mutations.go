package church

import (
	"context"
	"log/slog"

	"github.com/gracefellowship/tidings/v1/changebus"
	"github.com/gracefellowship/tidings/v1/mutation"
)

// Mutations are the admin write operations. Each one invalidates the topics
// showing the record it changes and writes an activity log entry.
type Mutations struct {
	CreateEvent *mutation.Mutation[Event, Event]
	UpdateEvent *mutation.Mutation[Event, Event]
	DeleteEvent *mutation.Mutation[string, string]

	CreateMinistry *mutation.Mutation[Ministry, Ministry]
	UpdateMinistry *mutation.Mutation[Ministry, Ministry]
	DeleteMinistry *mutation.Mutation[string, string]
	SortMinistries *mutation.Mutation[[]SortItem, []SortItem]

	CreateSermon *mutation.Mutation[Sermon, Sermon]
	UpdateSermon *mutation.Mutation[Sermon, Sermon]
	DeleteSermon *mutation.Mutation[string, string]

	AddGalleryImage    *mutation.Mutation[GalleryImage, GalleryImage]
	DeleteGalleryImage *mutation.Mutation[string, string]

	CreateServiceTime *mutation.Mutation[ServiceTime, ServiceTime]
	UpdateServiceTime *mutation.Mutation[ServiceTime, ServiceTime]
	DeleteServiceTime *mutation.Mutation[string, string]
	SortServiceTimes  *mutation.Mutation[[]SortItem, []SortItem]

	CreatePastor *mutation.Mutation[Pastor, Pastor]
	UpdatePastor *mutation.Mutation[Pastor, Pastor]
	DeletePastor *mutation.Mutation[string, string]
	SortPastors  *mutation.Mutation[[]SortItem, []SortItem]

	UpdateChurchInfo *mutation.Mutation[Info, Info]

	ClearLogs *mutation.Mutation[struct{}, struct{}]

	store  *Store
	bus    changebus.Bus
	logger *slog.Logger
}

// NewMutations builds the write operations over store, invalidating on bus.
func NewMutations(store *Store, bus changebus.Bus, logger *slog.Logger) *Mutations {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mutations{store: store, bus: bus, logger: logger}

	m.CreateEvent = build(m, "create_event", store.CreateEvent, func(_ Event, e Event) ActivityLog {
		return activity(ActionCreateEvent, "Created event: "+e.Title, "event", e.ID)
	}, TopicEvents)
	m.UpdateEvent = build(m, "update_event", store.UpdateEvent, func(_ Event, e Event) ActivityLog {
		return activity(ActionUpdateEvent, "Updated event: "+e.Title, "event", e.ID)
	}, TopicEvents)
	m.DeleteEvent = build(m, "delete_event", deleter(store.DeleteEvent), func(id, _ string) ActivityLog {
		return activity(ActionDeleteEvent, "Deleted an event", "event", id)
	}, TopicEvents)

	m.CreateMinistry = build(m, "create_ministry", store.CreateMinistry, func(_ Ministry, r Ministry) ActivityLog {
		return activity(ActionCreateMinistry, "Created ministry: "+r.Name, "ministry", r.ID)
	}, TopicMinistries)
	m.UpdateMinistry = build(m, "update_ministry", store.UpdateMinistry, func(_ Ministry, r Ministry) ActivityLog {
		return activity(ActionUpdateMinistry, "Updated ministry: "+r.Name, "ministry", r.ID)
	}, TopicMinistries)
	m.DeleteMinistry = build(m, "delete_ministry", deleter(store.DeleteMinistry), func(id, _ string) ActivityLog {
		return activity(ActionDeleteMinistry, "Deleted a ministry", "ministry", id)
	}, TopicMinistries)
	m.SortMinistries = build(m, "sort_ministries", sorter(store.SortMinistries), nil, TopicMinistries)

	m.CreateSermon = build(m, "create_sermon", store.CreateSermon, func(_ Sermon, r Sermon) ActivityLog {
		return activity(ActionCreateSermon, "Created sermon: "+r.Title, "sermon", r.ID)
	}, TopicSermons, TopicLatestSermon)
	m.UpdateSermon = build(m, "update_sermon", store.UpdateSermon, func(_ Sermon, r Sermon) ActivityLog {
		return activity(ActionUpdateSermon, "Updated sermon: "+r.Title, "sermon", r.ID)
	}, TopicSermons, TopicLatestSermon)
	m.DeleteSermon = build(m, "delete_sermon", deleter(store.DeleteSermon), func(id, _ string) ActivityLog {
		return activity(ActionDeleteSermon, "Deleted a sermon", "sermon", id)
	}, TopicSermons, TopicLatestSermon)

	m.AddGalleryImage = build(m, "upload_image", store.AddGalleryImage, func(_ GalleryImage, r GalleryImage) ActivityLog {
		return activity(ActionUploadImage, "Uploaded image: "+r.Title, "gallery_image", r.ID)
	}, TopicGallery)
	m.DeleteGalleryImage = build(m, "delete_image", deleter(store.DeleteGalleryImage), func(id, _ string) ActivityLog {
		return activity(ActionDeleteImage, "Deleted an image", "gallery_image", id)
	}, TopicGallery)

	m.CreateServiceTime = build(m, "create_service_time", store.CreateServiceTime, func(_ ServiceTime, r ServiceTime) ActivityLog {
		return activity(ActionCreateServiceTime, "Created service time: "+r.Name, "service_time", r.ID)
	}, TopicServiceTimes)
	m.UpdateServiceTime = build(m, "update_service_time", store.UpdateServiceTime, func(_ ServiceTime, r ServiceTime) ActivityLog {
		return activity(ActionUpdateServiceTime, "Updated service time: "+r.Name, "service_time", r.ID)
	}, TopicServiceTimes)
	m.DeleteServiceTime = build(m, "delete_service_time", deleter(store.DeleteServiceTime), func(id, _ string) ActivityLog {
		return activity(ActionDeleteServiceTime, "Deleted a service time", "service_time", id)
	}, TopicServiceTimes)
	m.SortServiceTimes = build(m, "sort_service_times", sorter(store.SortServiceTimes), nil, TopicServiceTimes)

	m.CreatePastor = build(m, "create_pastor", store.CreatePastor, func(_ Pastor, r Pastor) ActivityLog {
		return activity(ActionCreatePastor, "Created pastor: "+r.Name, "pastor", r.ID)
	}, TopicPastors)
	m.UpdatePastor = build(m, "update_pastor", store.UpdatePastor, func(_ Pastor, r Pastor) ActivityLog {
		return activity(ActionUpdatePastor, "Updated pastor: "+r.Name, "pastor", r.ID)
	}, TopicPastors)
	m.DeletePastor = build(m, "delete_pastor", deleter(store.DeletePastor), func(id, _ string) ActivityLog {
		return activity(ActionDeletePastor, "Deleted a pastor", "pastor", id)
	}, TopicPastors)
	m.SortPastors = build(m, "sort_pastors", sorter(store.SortPastors), nil, TopicPastors)

	m.UpdateChurchInfo = build(m, "update_church_info", store.UpdateChurchInfo, func(_ Info, r Info) ActivityLog {
		return activity(ActionUpdateChurchInfo, "Updated church information", "church_info", r.ID)
	}, TopicChurchInfo)

	m.ClearLogs = build(m, "clear_logs", func(ctx context.Context, _ struct{}) (struct{}, error) {
		return struct{}{}, store.ClearLogs(ctx)
	}, nil, TopicActivityLogs, TopicLogSummary, TopicLogActionTypes, TopicLogEntityTypes)

	return m
}

func build[V, R any](m *Mutations, name string, fn mutation.Func[V, R], log func(V, R) ActivityLog, topics ...string) *mutation.Mutation[V, R] {
	opts := []mutation.Option[V, R]{
		mutation.WithName[V, R](name),
		mutation.WithLogger[V, R](m.logger),
		mutation.Invalidates[V, R](m.bus, topics...),
	}
	if log != nil {
		opts = append(opts, mutation.OnSuccess(func(ctx context.Context, v V, r R) {
			m.logActivity(ctx, log(v, r))
		}))
	}
	return mutation.New(fn, opts...)
}

func deleter(del func(context.Context, string) error) mutation.Func[string, string] {
	return func(ctx context.Context, id string) (string, error) {
		if err := del(ctx, id); err != nil {
			return "", err
		}
		return id, nil
	}
}

func sorter(sort func(context.Context, []SortItem) error) mutation.Func[[]SortItem, []SortItem] {
	return func(ctx context.Context, items []SortItem) ([]SortItem, error) {
		if err := sort(ctx, items); err != nil {
			return nil, err
		}
		return items, nil
	}
}

func activity(action, description, entityType, entityID string) ActivityLog {
	return ActivityLog{
		ActionType:        action,
		ActionDescription: description,
		EntityType:        entityType,
		EntityID:          entityID,
	}
}

// logActivity records an admin action. A failure is logged and never
// reaches the caller of the mutation.
func (m *Mutations) logActivity(ctx context.Context, l ActivityLog) {
	if _, err := m.store.LogActivity(ctx, l); err != nil {
		m.logger.Warn("church: failed to log activity", "action", l.ActionType, "error", err)
	}
}
