package church

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gracefellowship/tidings/v1/realtime"
	"github.com/gracefellowship/tidings/v1/storage"
)

func newTestStore(t *testing.T) (*Store, *realtime.MemoryFeed) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "church.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	feed := realtime.NewMemoryFeed()
	return NewStore(db, feed), feed
}

func nextChange(t *testing.T, ch <-chan realtime.Change) realtime.Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
	}
	return realtime.Change{}
}

func TestEventCRUD(t *testing.T) {
	s, feed := newTestStore(t)
	ctx := context.Background()
	changes, err := feed.Watch(ctx, TableEvents)
	require.NoError(t, err)

	_, err = s.CreateEvent(ctx, Event{EventDate: "2025-06-01"})
	require.ErrorIs(t, err, ErrInvalid)

	e, err := s.CreateEvent(ctx, Event{Title: "Sunday Service", EventDate: "2025-06-01"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventScheduled, e.Status)
	c := nextChange(t, changes)
	assert.Equal(t, realtime.Insert, c.Type)
	assert.Equal(t, e.ID, c.RecordID)

	_, err = s.CreateEvent(ctx, Event{Title: "Picnic", EventDate: "2025-05-01"})
	require.NoError(t, err)
	nextChange(t, changes)

	list, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Picnic", list[0].Title)

	e.Status = EventPostponed
	e.Location = "Hall"
	updated, err := s.UpdateEvent(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, EventPostponed, updated.Status)
	assert.Equal(t, "Hall", updated.Location)
	assert.Equal(t, realtime.Update, nextChange(t, changes).Type)

	e.Status = "cancelled"
	_, err = s.UpdateEvent(ctx, e)
	require.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, s.DeleteEvent(ctx, e.ID))
	assert.Equal(t, realtime.Delete, nextChange(t, changes).Type)
	require.ErrorIs(t, s.DeleteEvent(ctx, e.ID), ErrNotFound)
	_, err = s.GetEvent(ctx, e.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLatestSermon(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LatestSermon(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.CreateSermon(ctx, Sermon{Title: "Grace", Speaker: "Pastor Ann", SermonDate: "2025-01-05"})
	require.NoError(t, err)
	newest, err := s.CreateSermon(ctx, Sermon{Title: "Hope", Speaker: "Pastor Ann", SermonDate: "2025-02-09", IsFeatured: true})
	require.NoError(t, err)

	latest, ok, err := s.LatestSermon(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newest.ID, latest.ID)
	assert.True(t, latest.IsFeatured)

	all, err := s.ListSermons(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Hope", all[0].Title)
}

func TestSortOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateMinistry(ctx, Ministry{Name: "Choir", SortOrder: 1})
	require.NoError(t, err)
	b, err := s.CreateMinistry(ctx, Ministry{Name: "Youth", SortOrder: 2, Category: CategoryOutreach})
	require.NoError(t, err)

	require.NoError(t, s.SortMinistries(ctx, []SortItem{{ID: a.ID, SortOrder: 2}, {ID: b.ID, SortOrder: 1}}))
	list, err := s.ListMinistries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Youth", list[0].Name)

	err = s.SortMinistries(ctx, []SortItem{{ID: a.ID, SortOrder: 5}, {ID: "missing", SortOrder: 6}})
	require.ErrorIs(t, err, ErrNotFound)
	list, err = s.ListMinistries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, list[1].SortOrder, "failed sort must roll back")
}

func TestChurchInfoUpsert(t *testing.T) {
	s, feed := newTestStore(t)
	ctx := context.Background()
	changes, err := feed.Watch(ctx, TableChurchInfo)
	require.NoError(t, err)

	_, ok, err := s.ChurchInfo(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := s.UpdateChurchInfo(ctx, Info{ChurchName: "Grace Fellowship", City: "Springfield"})
	require.NoError(t, err)
	assert.Equal(t, realtime.Insert, nextChange(t, changes).Type)

	second, err := s.UpdateChurchInfo(ctx, Info{ChurchName: "Grace Fellowship", City: "Shelbyville"})
	require.NoError(t, err)
	assert.Equal(t, realtime.Update, nextChange(t, changes).Type)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Shelbyville", second.City)
}

func TestGalleryServiceTimesAndPastors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	img, err := s.AddGalleryImage(ctx, galleryImage("Baptism"))
	require.NoError(t, err)
	imgs, err := s.ListGallery(ctx)
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	require.NoError(t, s.DeleteGalleryImage(ctx, img.ID))

	st, err := s.CreateServiceTime(ctx, ServiceTime{Name: "Worship", Time: "10:00"})
	require.NoError(t, err)
	st.Audience = "Everyone"
	st, err = s.UpdateServiceTime(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, "Everyone", st.Audience)
	require.NoError(t, s.SortServiceTimes(ctx, []SortItem{{ID: st.ID, SortOrder: 3}}))

	p, err := s.CreatePastor(ctx, Pastor{Name: "Ann", Title: "Lead Pastor"})
	require.NoError(t, err)
	p.Bio = "Serving since 2010"
	p, err = s.UpdatePastor(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Serving since 2010", p.Bio)
	require.NoError(t, s.SortPastors(ctx, []SortItem{{ID: p.ID, SortOrder: 1}}))
	require.NoError(t, s.DeletePastor(ctx, p.ID))
	pastors, err := s.ListPastors(ctx)
	require.NoError(t, err)
	assert.Empty(t, pastors)
}

func galleryImage(title string) GalleryImage {
	return GalleryImage{Title: title, ImageURL: "https://example.org/" + title + ".jpg"}
}

func TestActivityLogs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)

	for i, l := range []ActivityLog{
		{ActionType: ActionCreateEvent, EntityType: "event", UserID: "u1", CreatedAt: day},
		{ActionType: ActionCreateEvent, EntityType: "event", UserID: "u2", CreatedAt: day.Add(time.Hour)},
		{ActionType: ActionDeleteSermon, EntityType: "sermon", UserID: "u1", CreatedAt: day.AddDate(0, 0, 1), Metadata: map[string]any{"n": 1.0}},
		{ActionType: "login", CreatedAt: day.AddDate(0, 0, 2)},
	} {
		_, err := s.LogActivity(ctx, l)
		require.NoError(t, err, "log %d", i)
	}
	_, err := s.LogActivity(ctx, ActivityLog{})
	require.ErrorIs(t, err, ErrInvalid)

	page, err := s.ListLogs(ctx, LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalCount)
	assert.Equal(t, "login", page.Logs[0].ActionType)

	page, err = s.ListLogs(ctx, LogFilter{ActionType: ActionCreateEvent, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "u2", page.Logs[0].UserID)

	page, err = s.ListLogs(ctx, LogFilter{Start: day, End: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)

	page, err = s.ListLogs(ctx, LogFilter{UserID: "u1", EntityType: "sermon"})
	require.NoError(t, err)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, 1.0, page.Logs[0].Metadata["n"])

	sum, err := s.SummarizeLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.ByActionType[ActionCreateEvent])

	actions, err := s.LogActionTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ActionCreateEvent, ActionDeleteSermon, "login"}, actions)
	entities, err := s.LogEntityTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"event", "sermon"}, entities)

	require.NoError(t, s.ClearLogs(ctx))
	sum, err = s.SummarizeLogs(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
}
