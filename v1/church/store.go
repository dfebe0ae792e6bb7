package church

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gracefellowship/tidings/v1/realtime"
	"github.com/gracefellowship/tidings/v1/storage"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("church: record not found")
	// ErrInvalid is returned when a record fails validation.
	ErrInvalid = errors.New("church: invalid record")
)

// Table names, which are also the realtime resources.
const (
	TableEvents        = "events"
	TableMinistries    = "ministries"
	TableSermons       = "sermons"
	TableGalleryImages = "gallery_images"
	TableServiceTimes  = "service_times"
	TablePastors       = "pastors"
	TableChurchInfo    = "church_info"
	TableActivityLogs  = "activity_logs"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// Store persists church content in SQLite and reports every write on a
// realtime feed.
type Store struct {
	db     *sql.DB
	feed   realtime.Feed
	logger *slog.Logger
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used when a change cannot be published.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore returns a Store over db. feed may be nil.
func NewStore(db *sql.DB, feed realtime.Feed, opts ...StoreOption) *Store {
	s := &Store{db: db, feed: feed, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// changed publishes a change after a committed write. The write already
// happened, so a feed failure is only logged.
func (s *Store) changed(ctx context.Context, table string, typ realtime.ChangeType, id string) {
	if s.feed == nil {
		return
	}
	c := realtime.Change{Type: typ, Table: table, RecordID: id, At: s.now().UTC()}
	if err := s.feed.Publish(ctx, c); err != nil {
		s.logger.Warn("church: publish change failed", "table", table, "record", id, "error", err)
	}
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, field)
	}
	return nil
}

func newID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return uuid.NewString()
}

func affected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) deleteRow(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	if err := affected(res, "delete "+table); err != nil {
		return err
	}
	s.changed(ctx, table, realtime.Delete, id)
	return nil
}

// updateSortOrder writes every position in one transaction.
func (s *Store) updateSortOrder(ctx context.Context, table string, items []SortItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sort %s: %w", table, err)
	}
	now := storage.ToMillis(s.now())
	for _, it := range items {
		res, err := tx.ExecContext(ctx,
			"UPDATE "+table+" SET sort_order = ?, updated_at = ? WHERE id = ?",
			it.SortOrder, now, it.ID,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sort %s: %w", table, err)
		}
		if err := affected(res, "sort "+table); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: %s", err, it.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sort %s: %w", table, err)
	}
	s.changed(ctx, table, realtime.Update, "")
	return nil
}

// Events

const eventColumns = "id, title, description, event_date, event_time, location, image_url, status, created_at, updated_at"

func scanEvent(r rowScanner) (Event, error) {
	var e Event
	var status string
	var created, updated int64
	if err := r.Scan(&e.ID, &e.Title, &e.Description, &e.EventDate, &e.EventTime, &e.Location, &e.ImageURL, &status, &created, &updated); err != nil {
		return Event{}, err
	}
	e.Status = EventStatus(status)
	e.CreatedAt = storage.FromMillis(created)
	e.UpdatedAt = storage.FromMillis(updated)
	return e, nil
}

func validEventStatus(s EventStatus) bool {
	switch s {
	case EventScheduled, EventPostponed, EventDone:
		return true
	}
	return false
}

func validateEvent(e *Event) error {
	if err := required("title", e.Title); err != nil {
		return err
	}
	if err := required("event_date", e.EventDate); err != nil {
		return err
	}
	if e.Status == "" {
		e.Status = EventScheduled
	}
	if !validEventStatus(e.Status) {
		return fmt.Errorf("%w: unknown event status %q", ErrInvalid, e.Status)
	}
	return nil
}

// ListEvents returns all events by date.
func (s *Store) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+eventColumns+" FROM events ORDER BY event_date ASC, created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEvent returns one event.
func (s *Store) GetEvent(ctx context.Context, id string) (Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// CreateEvent inserts e, assigning an ID when empty.
func (s *Store) CreateEvent(ctx context.Context, e Event) (Event, error) {
	if err := validateEvent(&e); err != nil {
		return Event{}, err
	}
	e.ID = newID(e.ID)
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.Title, e.Description, e.EventDate, e.EventTime, e.Location, e.ImageURL, string(e.Status),
		storage.ToMillis(now), storage.ToMillis(now),
	)
	if err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}
	s.changed(ctx, TableEvents, realtime.Insert, e.ID)
	return s.GetEvent(ctx, e.ID)
}

// UpdateEvent replaces the stored fields of e.
func (s *Store) UpdateEvent(ctx context.Context, e Event) (Event, error) {
	if err := validateEvent(&e); err != nil {
		return Event{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, event_date = ?, event_time = ?, location = ?,
		   image_url = ?, status = ?, updated_at = ? WHERE id = ?`,
		e.Title, e.Description, e.EventDate, e.EventTime, e.Location, e.ImageURL, string(e.Status),
		storage.ToMillis(s.now()), e.ID,
	)
	if err != nil {
		return Event{}, fmt.Errorf("update event: %w", err)
	}
	if err := affected(res, "update event"); err != nil {
		return Event{}, err
	}
	s.changed(ctx, TableEvents, realtime.Update, e.ID)
	return s.GetEvent(ctx, e.ID)
}

// DeleteEvent removes an event.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return s.deleteRow(ctx, TableEvents, id)
}

// Ministries

const ministryColumns = "id, name, description, leader, meeting_time, image_url, sort_order, category, created_at, updated_at"

func scanMinistry(r rowScanner) (Ministry, error) {
	var m Ministry
	var category string
	var created, updated int64
	if err := r.Scan(&m.ID, &m.Name, &m.Description, &m.Leader, &m.MeetingTime, &m.ImageURL, &m.SortOrder, &category, &created, &updated); err != nil {
		return Ministry{}, err
	}
	m.Category = MinistryCategory(category)
	m.CreatedAt = storage.FromMillis(created)
	m.UpdatedAt = storage.FromMillis(updated)
	return m, nil
}

func validateMinistry(m *Ministry) error {
	if err := required("name", m.Name); err != nil {
		return err
	}
	if m.Category == "" {
		m.Category = CategoryMinistry
	}
	if m.Category != CategoryMinistry && m.Category != CategoryOutreach {
		return fmt.Errorf("%w: unknown ministry category %q", ErrInvalid, m.Category)
	}
	return nil
}

// ListMinistries returns all ministries by sort order.
func (s *Store) ListMinistries(ctx context.Context) ([]Ministry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+ministryColumns+" FROM ministries ORDER BY sort_order ASC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("list ministries: %w", err)
	}
	defer rows.Close()
	out := []Ministry{}
	for rows.Next() {
		m, err := scanMinistry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ministry: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMinistry returns one ministry.
func (s *Store) GetMinistry(ctx context.Context, id string) (Ministry, error) {
	m, err := scanMinistry(s.db.QueryRowContext(ctx, "SELECT "+ministryColumns+" FROM ministries WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Ministry{}, ErrNotFound
	}
	if err != nil {
		return Ministry{}, fmt.Errorf("get ministry: %w", err)
	}
	return m, nil
}

// CreateMinistry inserts m.
func (s *Store) CreateMinistry(ctx context.Context, m Ministry) (Ministry, error) {
	if err := validateMinistry(&m); err != nil {
		return Ministry{}, err
	}
	m.ID = newID(m.ID)
	now := storage.ToMillis(s.now())
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ministries ("+ministryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.Name, m.Description, m.Leader, m.MeetingTime, m.ImageURL, m.SortOrder, string(m.Category), now, now,
	)
	if err != nil {
		return Ministry{}, fmt.Errorf("create ministry: %w", err)
	}
	s.changed(ctx, TableMinistries, realtime.Insert, m.ID)
	return s.GetMinistry(ctx, m.ID)
}

// UpdateMinistry replaces the stored fields of m.
func (s *Store) UpdateMinistry(ctx context.Context, m Ministry) (Ministry, error) {
	if err := validateMinistry(&m); err != nil {
		return Ministry{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ministries SET name = ?, description = ?, leader = ?, meeting_time = ?, image_url = ?,
		   sort_order = ?, category = ?, updated_at = ? WHERE id = ?`,
		m.Name, m.Description, m.Leader, m.MeetingTime, m.ImageURL, m.SortOrder, string(m.Category),
		storage.ToMillis(s.now()), m.ID,
	)
	if err != nil {
		return Ministry{}, fmt.Errorf("update ministry: %w", err)
	}
	if err := affected(res, "update ministry"); err != nil {
		return Ministry{}, err
	}
	s.changed(ctx, TableMinistries, realtime.Update, m.ID)
	return s.GetMinistry(ctx, m.ID)
}

// DeleteMinistry removes a ministry.
func (s *Store) DeleteMinistry(ctx context.Context, id string) error {
	return s.deleteRow(ctx, TableMinistries, id)
}

// SortMinistries applies new sort positions.
func (s *Store) SortMinistries(ctx context.Context, items []SortItem) error {
	return s.updateSortOrder(ctx, TableMinistries, items)
}

// Sermons

const sermonColumns = `id, title, description, speaker, sermon_date, video_url, audio_url, scripture_reference,
  series_name, thumbnail_url, duration_minutes, is_featured, created_at, updated_at`

func scanSermon(r rowScanner) (Sermon, error) {
	var m Sermon
	var created, updated int64
	if err := r.Scan(&m.ID, &m.Title, &m.Description, &m.Speaker, &m.SermonDate, &m.VideoURL, &m.AudioURL,
		&m.ScriptureReference, &m.SeriesName, &m.ThumbnailURL, &m.DurationMinutes, &m.IsFeatured, &created, &updated); err != nil {
		return Sermon{}, err
	}
	m.CreatedAt = storage.FromMillis(created)
	m.UpdatedAt = storage.FromMillis(updated)
	return m, nil
}

func validateSermon(m Sermon) error {
	if err := required("title", m.Title); err != nil {
		return err
	}
	if err := required("speaker", m.Speaker); err != nil {
		return err
	}
	return required("sermon_date", m.SermonDate)
}

// ListSermons returns all sermons, newest first.
func (s *Store) ListSermons(ctx context.Context) ([]Sermon, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+sermonColumns+" FROM sermons ORDER BY sermon_date DESC, created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list sermons: %w", err)
	}
	defer rows.Close()
	out := []Sermon{}
	for rows.Next() {
		m, err := scanSermon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sermon: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestSermon returns the most recent sermon. ok is false when there are
// none.
func (s *Store) LatestSermon(ctx context.Context) (Sermon, bool, error) {
	m, err := scanSermon(s.db.QueryRowContext(ctx, "SELECT "+sermonColumns+" FROM sermons ORDER BY sermon_date DESC, created_at DESC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return Sermon{}, false, nil
	}
	if err != nil {
		return Sermon{}, false, fmt.Errorf("latest sermon: %w", err)
	}
	return m, true, nil
}

// GetSermon returns one sermon.
func (s *Store) GetSermon(ctx context.Context, id string) (Sermon, error) {
	m, err := scanSermon(s.db.QueryRowContext(ctx, "SELECT "+sermonColumns+" FROM sermons WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Sermon{}, ErrNotFound
	}
	if err != nil {
		return Sermon{}, fmt.Errorf("get sermon: %w", err)
	}
	return m, nil
}

// CreateSermon inserts m.
func (s *Store) CreateSermon(ctx context.Context, m Sermon) (Sermon, error) {
	if err := validateSermon(m); err != nil {
		return Sermon{}, err
	}
	m.ID = newID(m.ID)
	now := storage.ToMillis(s.now())
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sermons ("+sermonColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.Title, m.Description, m.Speaker, m.SermonDate, m.VideoURL, m.AudioURL, m.ScriptureReference,
		m.SeriesName, m.ThumbnailURL, m.DurationMinutes, m.IsFeatured, now, now,
	)
	if err != nil {
		return Sermon{}, fmt.Errorf("create sermon: %w", err)
	}
	s.changed(ctx, TableSermons, realtime.Insert, m.ID)
	return s.GetSermon(ctx, m.ID)
}

// UpdateSermon replaces the stored fields of m.
func (s *Store) UpdateSermon(ctx context.Context, m Sermon) (Sermon, error) {
	if err := validateSermon(m); err != nil {
		return Sermon{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sermons SET title = ?, description = ?, speaker = ?, sermon_date = ?, video_url = ?, audio_url = ?,
		   scripture_reference = ?, series_name = ?, thumbnail_url = ?, duration_minutes = ?, is_featured = ?,
		   updated_at = ? WHERE id = ?`,
		m.Title, m.Description, m.Speaker, m.SermonDate, m.VideoURL, m.AudioURL, m.ScriptureReference,
		m.SeriesName, m.ThumbnailURL, m.DurationMinutes, m.IsFeatured, storage.ToMillis(s.now()), m.ID,
	)
	if err != nil {
		return Sermon{}, fmt.Errorf("update sermon: %w", err)
	}
	if err := affected(res, "update sermon"); err != nil {
		return Sermon{}, err
	}
	s.changed(ctx, TableSermons, realtime.Update, m.ID)
	return s.GetSermon(ctx, m.ID)
}

// DeleteSermon removes a sermon.
func (s *Store) DeleteSermon(ctx context.Context, id string) error {
	return s.deleteRow(ctx, TableSermons, id)
}

// Gallery

const galleryColumns = "id, title, description, image_url, created_at"

func scanGalleryImage(r rowScanner) (GalleryImage, error) {
	var g GalleryImage
	var created int64
	if err := r.Scan(&g.ID, &g.Title, &g.Description, &g.ImageURL, &created); err != nil {
		return GalleryImage{}, err
	}
	g.CreatedAt = storage.FromMillis(created)
	return g, nil
}

// ListGallery returns all gallery images, newest first.
func (s *Store) ListGallery(ctx context.Context) ([]GalleryImage, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+galleryColumns+" FROM gallery_images ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}
	defer rows.Close()
	out := []GalleryImage{}
	for rows.Next() {
		g, err := scanGalleryImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gallery image: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AddGalleryImage records an already uploaded image.
func (s *Store) AddGalleryImage(ctx context.Context, g GalleryImage) (GalleryImage, error) {
	if err := required("title", g.Title); err != nil {
		return GalleryImage{}, err
	}
	if err := required("image_url", g.ImageURL); err != nil {
		return GalleryImage{}, err
	}
	g.ID = newID(g.ID)
	g.CreatedAt = storage.FromMillis(storage.ToMillis(s.now()))
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO gallery_images ("+galleryColumns+") VALUES (?, ?, ?, ?, ?)",
		g.ID, g.Title, g.Description, g.ImageURL, storage.ToMillis(g.CreatedAt),
	)
	if err != nil {
		return GalleryImage{}, fmt.Errorf("add gallery image: %w", err)
	}
	s.changed(ctx, TableGalleryImages, realtime.Insert, g.ID)
	return g, nil
}

// DeleteGalleryImage removes a gallery image record.
func (s *Store) DeleteGalleryImage(ctx context.Context, id string) error {
	return s.deleteRow(ctx, TableGalleryImages, id)
}

// Service times

const serviceTimeColumns = "id, name, time, description, audience, sort_order, created_at, updated_at"

func scanServiceTime(r rowScanner) (ServiceTime, error) {
	var st ServiceTime
	var created, updated int64
	if err := r.Scan(&st.ID, &st.Name, &st.Time, &st.Description, &st.Audience, &st.SortOrder, &created, &updated); err != nil {
		return ServiceTime{}, err
	}
	st.CreatedAt = storage.FromMillis(created)
	st.UpdatedAt = storage.FromMillis(updated)
	return st, nil
}

func validateServiceTime(st ServiceTime) error {
	if err := required("name", st.Name); err != nil {
		return err
	}
	return required("time", st.Time)
}

// ListServiceTimes returns all service times by sort order.
func (s *Store) ListServiceTimes(ctx context.Context) ([]ServiceTime, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+serviceTimeColumns+" FROM service_times ORDER BY sort_order ASC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("list service times: %w", err)
	}
	defer rows.Close()
	out := []ServiceTime{}
	for rows.Next() {
		st, err := scanServiceTime(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service time: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetServiceTime returns one service time.
func (s *Store) GetServiceTime(ctx context.Context, id string) (ServiceTime, error) {
	st, err := scanServiceTime(s.db.QueryRowContext(ctx, "SELECT "+serviceTimeColumns+" FROM service_times WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return ServiceTime{}, ErrNotFound
	}
	if err != nil {
		return ServiceTime{}, fmt.Errorf("get service time: %w", err)
	}
	return st, nil
}

// CreateServiceTime inserts st.
func (s *Store) CreateServiceTime(ctx context.Context, st ServiceTime) (ServiceTime, error) {
	if err := validateServiceTime(st); err != nil {
		return ServiceTime{}, err
	}
	st.ID = newID(st.ID)
	now := storage.ToMillis(s.now())
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO service_times ("+serviceTimeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		st.ID, st.Name, st.Time, st.Description, st.Audience, st.SortOrder, now, now,
	)
	if err != nil {
		return ServiceTime{}, fmt.Errorf("create service time: %w", err)
	}
	s.changed(ctx, TableServiceTimes, realtime.Insert, st.ID)
	return s.GetServiceTime(ctx, st.ID)
}

// UpdateServiceTime replaces the stored fields of st.
func (s *Store) UpdateServiceTime(ctx context.Context, st ServiceTime) (ServiceTime, error) {
	if err := validateServiceTime(st); err != nil {
		return ServiceTime{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE service_times SET name = ?, time = ?, description = ?, audience = ?, sort_order = ?, updated_at = ?
		 WHERE id = ?`,
		st.Name, st.Time, st.Description, st.Audience, st.SortOrder, storage.ToMillis(s.now()), st.ID,
	)
	if err != nil {
		return ServiceTime{}, fmt.Errorf("update service time: %w", err)
	}
	if err := affected(res, "update service time"); err != nil {
		return ServiceTime{}, err
	}
	s.changed(ctx, TableServiceTimes, realtime.Update, st.ID)
	return s.GetServiceTime(ctx, st.ID)
}

// DeleteServiceTime removes a service time.
func (s *Store) DeleteServiceTime(ctx context.Context, id string) error {
	return s.deleteRow(ctx, TableServiceTimes, id)
}

// SortServiceTimes applies new sort positions.
func (s *Store) SortServiceTimes(ctx context.Context, items []SortItem) error {
	return s.updateSortOrder(ctx, TableServiceTimes, items)
}

// Pastors

const pastorColumns = "id, name, email, phone, title, bio, image_url, facebook_url, sort_order, created_at, updated_at"

func scanPastor(r rowScanner) (Pastor, error) {
	var p Pastor
	var created, updated int64
	if err := r.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Title, &p.Bio, &p.ImageURL, &p.FacebookURL, &p.SortOrder, &created, &updated); err != nil {
		return Pastor{}, err
	}
	p.CreatedAt = storage.FromMillis(created)
	p.UpdatedAt = storage.FromMillis(updated)
	return p, nil
}

// ListPastors returns all pastors by sort order.
func (s *Store) ListPastors(ctx context.Context) ([]Pastor, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+pastorColumns+" FROM pastors ORDER BY sort_order ASC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("list pastors: %w", err)
	}
	defer rows.Close()
	out := []Pastor{}
	for rows.Next() {
		p, err := scanPastor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pastor: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPastor returns one pastor.
func (s *Store) GetPastor(ctx context.Context, id string) (Pastor, error) {
	p, err := scanPastor(s.db.QueryRowContext(ctx, "SELECT "+pastorColumns+" FROM pastors WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Pastor{}, ErrNotFound
	}
	if err != nil {
		return Pastor{}, fmt.Errorf("get pastor: %w", err)
	}
	return p, nil
}

// CreatePastor inserts p.
func (s *Store) CreatePastor(ctx context.Context, p Pastor) (Pastor, error) {
	if err := required("name", p.Name); err != nil {
		return Pastor{}, err
	}
	p.ID = newID(p.ID)
	now := storage.ToMillis(s.now())
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pastors ("+pastorColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.Name, p.Email, p.Phone, p.Title, p.Bio, p.ImageURL, p.FacebookURL, p.SortOrder, now, now,
	)
	if err != nil {
		return Pastor{}, fmt.Errorf("create pastor: %w", err)
	}
	s.changed(ctx, TablePastors, realtime.Insert, p.ID)
	return s.GetPastor(ctx, p.ID)
}

// UpdatePastor replaces the stored fields of p.
func (s *Store) UpdatePastor(ctx context.Context, p Pastor) (Pastor, error) {
	if err := required("name", p.Name); err != nil {
		return Pastor{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pastors SET name = ?, email = ?, phone = ?, title = ?, bio = ?, image_url = ?, facebook_url = ?,
		   sort_order = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Email, p.Phone, p.Title, p.Bio, p.ImageURL, p.FacebookURL, p.SortOrder, storage.ToMillis(s.now()), p.ID,
	)
	if err != nil {
		return Pastor{}, fmt.Errorf("update pastor: %w", err)
	}
	if err := affected(res, "update pastor"); err != nil {
		return Pastor{}, err
	}
	s.changed(ctx, TablePastors, realtime.Update, p.ID)
	return s.GetPastor(ctx, p.ID)
}

// DeletePastor removes a pastor.
func (s *Store) DeletePastor(ctx context.Context, id string) error {
	return s.deleteRow(ctx, TablePastors, id)
}

// SortPastors applies new sort positions.
func (s *Store) SortPastors(ctx context.Context, items []SortItem) error {
	return s.updateSortOrder(ctx, TablePastors, items)
}

// Church info

const infoColumns = `id, church_name, pastor_name, pastor_email, pastor_phone, address, city, state, zip, phone,
  email, office_hours, fallback_stream_url, created_at, updated_at`

// ChurchInfo returns the church contact record. ok is false when it was
// never saved.
func (s *Store) ChurchInfo(ctx context.Context) (Info, bool, error) {
	var in Info
	var created, updated int64
	err := s.db.QueryRowContext(ctx, "SELECT "+infoColumns+" FROM church_info ORDER BY created_at ASC LIMIT 1").Scan(
		&in.ID, &in.ChurchName, &in.PastorName, &in.PastorEmail, &in.PastorPhone, &in.Address, &in.City, &in.State,
		&in.Zip, &in.Phone, &in.Email, &in.OfficeHours, &in.FallbackStreamURL, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, fmt.Errorf("church info: %w", err)
	}
	in.CreatedAt = storage.FromMillis(created)
	in.UpdatedAt = storage.FromMillis(updated)
	return in, true, nil
}

// UpdateChurchInfo saves the church contact record, creating it the first
// time.
func (s *Store) UpdateChurchInfo(ctx context.Context, in Info) (Info, error) {
	cur, ok, err := s.ChurchInfo(ctx)
	if err != nil {
		return Info{}, err
	}
	now := storage.ToMillis(s.now())
	typ := realtime.Update
	if ok {
		in.ID = cur.ID
		_, err = s.db.ExecContext(ctx,
			`UPDATE church_info SET church_name = ?, pastor_name = ?, pastor_email = ?, pastor_phone = ?, address = ?,
			   city = ?, state = ?, zip = ?, phone = ?, email = ?, office_hours = ?, fallback_stream_url = ?,
			   updated_at = ? WHERE id = ?`,
			in.ChurchName, in.PastorName, in.PastorEmail, in.PastorPhone, in.Address, in.City, in.State, in.Zip,
			in.Phone, in.Email, in.OfficeHours, in.FallbackStreamURL, now, in.ID,
		)
	} else {
		typ = realtime.Insert
		in.ID = newID(in.ID)
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO church_info ("+infoColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			in.ID, in.ChurchName, in.PastorName, in.PastorEmail, in.PastorPhone, in.Address, in.City, in.State,
			in.Zip, in.Phone, in.Email, in.OfficeHours, in.FallbackStreamURL, now, now,
		)
	}
	if err != nil {
		return Info{}, fmt.Errorf("save church info: %w", err)
	}
	s.changed(ctx, TableChurchInfo, typ, in.ID)
	saved, _, err := s.ChurchInfo(ctx)
	return saved, err
}
