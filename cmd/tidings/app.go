package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gracefellowship/tidings/v1/analytics"
	"github.com/gracefellowship/tidings/v1/church"
	"github.com/gracefellowship/tidings/v1/mutation"
	"github.com/gracefellowship/tidings/v1/query"
)

type app struct {
	content   church.Hooks
	mutations *church.Mutations
	tracker   *analytics.Tracker
	reports   analytics.Hooks

	events       *query.Observer[[]church.Event]
	ministries   *query.Observer[[]church.Ministry]
	sermons      *query.Observer[[]church.Sermon]
	latestSermon *query.Observer[*church.Sermon]
	gallery      *query.Observer[[]church.GalleryImage]
	serviceTimes *query.Observer[[]church.ServiceTime]
	info         *query.Observer[*church.Info]
	pastors      *query.Observer[[]church.Pastor]

	closers []func()
}

// open mounts the public content observers. They stay mounted for the life
// of the process so reads are served from the cache and refreshed by the bus.
func (a *app) open() error {
	var err error
	if a.events, err = track(a, a.content.Events); err != nil {
		return err
	}
	if a.ministries, err = track(a, a.content.Ministries); err != nil {
		return err
	}
	if a.sermons, err = track(a, a.content.Sermons); err != nil {
		return err
	}
	if a.latestSermon, err = track(a, a.content.LatestSermon); err != nil {
		return err
	}
	if a.gallery, err = track(a, a.content.Gallery); err != nil {
		return err
	}
	if a.serviceTimes, err = track(a, a.content.ServiceTimes); err != nil {
		return err
	}
	if a.info, err = track(a, a.content.ChurchInfo); err != nil {
		return err
	}
	if a.pastors, err = track(a, a.content.Pastors); err != nil {
		return err
	}
	return nil
}

func track[T any](a *app, mount func(...query.Option) (*query.Observer[T], error)) (*query.Observer[T], error) {
	o, err := mount()
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, o.Close)
	return o, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
}

func (a *app) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/events", serve(a.events))
	mux.HandleFunc("GET /api/ministries", serve(a.ministries))
	mux.HandleFunc("GET /api/sermons", serve(a.sermons))
	mux.HandleFunc("GET /api/sermons/latest", serve(a.latestSermon))
	mux.HandleFunc("GET /api/gallery", serve(a.gallery))
	mux.HandleFunc("GET /api/service-times", serve(a.serviceTimes))
	mux.HandleFunc("GET /api/church-info", serve(a.info))
	mux.HandleFunc("GET /api/pastors", serve(a.pastors))

	mux.HandleFunc("POST /api/events", mutate(a.mutations.CreateEvent))
	mux.HandleFunc("PUT /api/events", mutate(a.mutations.UpdateEvent))
	mux.HandleFunc("DELETE /api/events/{id}", remove(a.mutations.DeleteEvent))
	mux.HandleFunc("POST /api/ministries", mutate(a.mutations.CreateMinistry))
	mux.HandleFunc("PUT /api/ministries", mutate(a.mutations.UpdateMinistry))
	mux.HandleFunc("DELETE /api/ministries/{id}", remove(a.mutations.DeleteMinistry))
	mux.HandleFunc("POST /api/ministries/order", mutate(a.mutations.SortMinistries))
	mux.HandleFunc("POST /api/sermons", mutate(a.mutations.CreateSermon))
	mux.HandleFunc("PUT /api/sermons", mutate(a.mutations.UpdateSermon))
	mux.HandleFunc("DELETE /api/sermons/{id}", remove(a.mutations.DeleteSermon))
	mux.HandleFunc("POST /api/gallery", mutate(a.mutations.AddGalleryImage))
	mux.HandleFunc("DELETE /api/gallery/{id}", remove(a.mutations.DeleteGalleryImage))
	mux.HandleFunc("POST /api/service-times", mutate(a.mutations.CreateServiceTime))
	mux.HandleFunc("PUT /api/service-times", mutate(a.mutations.UpdateServiceTime))
	mux.HandleFunc("DELETE /api/service-times/{id}", remove(a.mutations.DeleteServiceTime))
	mux.HandleFunc("POST /api/service-times/order", mutate(a.mutations.SortServiceTimes))
	mux.HandleFunc("POST /api/pastors", mutate(a.mutations.CreatePastor))
	mux.HandleFunc("PUT /api/pastors", mutate(a.mutations.UpdatePastor))
	mux.HandleFunc("DELETE /api/pastors/{id}", remove(a.mutations.DeletePastor))
	mux.HandleFunc("POST /api/pastors/order", mutate(a.mutations.SortPastors))
	mux.HandleFunc("PUT /api/church-info", mutate(a.mutations.UpdateChurchInfo))

	mux.HandleFunc("GET /api/logs", a.logs)
	mux.HandleFunc("GET /api/logs/summary", once(a.content.LogSummary))
	mux.HandleFunc("GET /api/logs/action-types", once(a.content.LogActionTypes))
	mux.HandleFunc("GET /api/logs/entity-types", once(a.content.LogEntityTypes))
	mux.HandleFunc("DELETE /api/logs", func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.mutations.ClearLogs.Mutate(r.Context(), struct{}{}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/visits", a.visit)
	mux.HandleFunc("GET /api/analytics/summary", a.summary)
	mux.HandleFunc("GET /api/analytics/daily", days(a.reports.DailyVisits))
	mux.HandleFunc("GET /api/analytics/pages", days(a.reports.PagePopularity))
	mux.HandleFunc("GET /api/analytics/recent", func(w http.ResponseWriter, r *http.Request) {
		limit := intParam(r, "limit", 50)
		once(func(opts ...query.Option) (*query.Observer[[]analytics.Visit], error) {
			return a.reports.RecentVisits(limit, opts...)
		})(w, r)
	})
	mux.HandleFunc("GET /api/analytics/content", once(a.reports.Content))
}

const dateLayout = "2006-01-02"

func (a *app) logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := dateParam(r, "start_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := dateParam(r, "end_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f := church.LogFilter{
		Start:      start,
		End:        end,
		ActionType: q.Get("action_type"),
		EntityType: q.Get("entity_type"),
		UserID:     q.Get("user_id"),
		Limit:      intParam(r, "limit", 0),
		Offset:     intParam(r, "offset", 0),
	}
	once(func(opts ...query.Option) (*query.Observer[church.LogPage], error) {
		return a.content.Logs(f, opts...)
	})(w, r)
}

func (a *app) visit(w http.ResponseWriter, r *http.Request) {
	var v analytics.Visit
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "invalid visit", http.StatusBadRequest)
		return
	}
	if v.UserAgent == "" {
		v.UserAgent = r.UserAgent()
	}
	if v.Referrer == "" {
		v.Referrer = r.Referer()
	}
	writeJSON(w, http.StatusAccepted, a.tracker.TrackPageVisit(r.Context(), v))
}

// summary serves the visit summary, empty when the report keeps failing.
func (a *app) summary(w http.ResponseWriter, r *http.Request) {
	o, err := a.reports.Summary(intParam(r, "days", 30))
	if err != nil {
		writeError(w, err)
		return
	}
	defer o.Close()
	s, ok := settle(o, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analytics.SummaryOf(s))
}

// days serves a report over the last ?days= days, 30 by default.
func days[T any](mount func(int, ...query.Option) (*query.Observer[T], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := intParam(r, "days", 30)
		once(func(opts ...query.Option) (*query.Observer[T], error) {
			return mount(n, opts...)
		})(w, r)
	}
}

// serve writes the cached data of a long-lived observer, waiting for the
// first fetch when nothing is cached yet.
func serve[T any](o *query.Observer[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s, ok := settle(o, r); ok {
			writeState(w, s)
		}
	}
}

// settle returns the observer's state, waiting for a fetch when nothing is
// cached. ok is false when the request went away first.
func settle[T any](o *query.Observer[T], r *http.Request) (query.State[T], bool) {
	s := o.State()
	if s.HasData {
		return s, true
	}
	s, err := o.Refetch(r.Context())
	return s, err == nil
}

// once mounts an observer for one request. Concurrent requests for the
// same key share the entry and its fetch.
func once[T any](mount func(...query.Option) (*query.Observer[T], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := mount()
		if err != nil {
			writeError(w, err)
			return
		}
		defer o.Close()
		serve(o)(w, r)
	}
}

func mutate[V, R any](m *mutation.Mutation[V, R]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var v V
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		out, err := m.Mutate(r.Context(), v)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func remove(m *mutation.Mutation[string, string]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := m.Mutate(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// dateParam parses a YYYY-MM-DD query parameter in UTC. A missing
// parameter is the zero time.
func dateParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want %s", name, v, dateLayout)
	}
	return t, nil
}

func intParam(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeState[T any](w http.ResponseWriter, s query.State[T]) {
	if !s.HasData && s.Err != nil {
		writeError(w, s.Err)
		return
	}
	writeJSON(w, http.StatusOK, s.Data)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, church.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, church.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled):
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
