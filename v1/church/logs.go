package church

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gracefellowship/tidings/v1/realtime"
	"github.com/gracefellowship/tidings/v1/storage"
)

const (
	defaultLogLimit = 50
	logColumns      = "id, action_type, action_description, entity_type, entity_id, user_id, user_email, metadata, page_path, created_at"
)

// LogActivity appends an activity log entry.
func (s *Store) LogActivity(ctx context.Context, l ActivityLog) (ActivityLog, error) {
	if err := required("action_type", l.ActionType); err != nil {
		return ActivityLog{}, err
	}
	if l.Metadata == nil {
		l.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(l.Metadata)
	if err != nil {
		return ActivityLog{}, fmt.Errorf("%w: metadata: %v", ErrInvalid, err)
	}
	l.ID = newID(l.ID)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	l.CreatedAt = storage.FromMillis(storage.ToMillis(l.CreatedAt))
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO activity_logs ("+logColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		l.ID, l.ActionType, l.ActionDescription, l.EntityType, l.EntityID, l.UserID, l.UserEmail,
		string(meta), l.PagePath, storage.ToMillis(l.CreatedAt),
	)
	if err != nil {
		return ActivityLog{}, fmt.Errorf("log activity: %w", err)
	}
	s.changed(ctx, TableActivityLogs, realtime.Insert, l.ID)
	return l, nil
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func (f LogFilter) where() (string, []any) {
	var conds []string
	var args []any
	if !f.Start.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, storage.ToMillis(f.Start))
	}
	if !f.End.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, storage.ToMillis(endOfDay(f.End)))
	}
	if f.ActionType != "" {
		conds = append(conds, "action_type = ?")
		args = append(args, f.ActionType)
	}
	if f.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListLogs returns one page of logs matching f, newest first.
func (s *Store) ListLogs(ctx context.Context, f LogFilter) (LogPage, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	where, args := f.where()

	var page LogPage
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_logs"+where, args...).Scan(&page.TotalCount); err != nil {
		return LogPage{}, fmt.Errorf("count logs: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+logColumns+" FROM activity_logs"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return LogPage{}, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()
	page.Logs = []ActivityLog{}
	for rows.Next() {
		var l ActivityLog
		var meta string
		var created int64
		if err := rows.Scan(&l.ID, &l.ActionType, &l.ActionDescription, &l.EntityType, &l.EntityID, &l.UserID,
			&l.UserEmail, &meta, &l.PagePath, &created); err != nil {
			return LogPage{}, fmt.Errorf("scan log: %w", err)
		}
		l.Metadata = map[string]any{}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &l.Metadata)
		}
		l.CreatedAt = storage.FromMillis(created)
		page.Logs = append(page.Logs, l)
	}
	return page, rows.Err()
}

// SummarizeLogs counts all logs by action type.
func (s *Store) SummarizeLogs(ctx context.Context) (LogSummary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT action_type, COUNT(*) FROM activity_logs GROUP BY action_type")
	if err != nil {
		return LogSummary{}, fmt.Errorf("summarize logs: %w", err)
	}
	defer rows.Close()
	sum := LogSummary{ByActionType: map[string]int{}}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return LogSummary{}, fmt.Errorf("scan log summary: %w", err)
		}
		sum.ByActionType[typ] = n
		sum.Total += n
	}
	return sum, rows.Err()
}

func (s *Store) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT "+column+" FROM activity_logs WHERE "+column+" != ''")
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, rows.Err()
}

// LogActionTypes returns the distinct action types, sorted.
func (s *Store) LogActionTypes(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "action_type")
}

// LogEntityTypes returns the distinct non-empty entity types, sorted.
func (s *Store) LogEntityTypes(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "entity_type")
}

// ClearLogs deletes every activity log entry.
func (s *Store) ClearLogs(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM activity_logs"); err != nil {
		return fmt.Errorf("clear logs: %w", err)
	}
	s.changed(ctx, TableActivityLogs, realtime.Delete, "")
	return nil
}
