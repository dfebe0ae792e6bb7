// Package church stores the church website content and exposes it as
// cached queries and invalidating mutations.
package church

import "time"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventPostponed EventStatus = "postponed"
	EventDone      EventStatus = "done"
)

// Event is a dated church event.
type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	EventDate   string      `json:"event_date"`
	EventTime   string      `json:"event_time"`
	Location    string      `json:"location"`
	ImageURL    string      `json:"image_url"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// MinistryCategory separates inward ministries from outreach.
type MinistryCategory string

const (
	CategoryMinistry MinistryCategory = "ministry"
	CategoryOutreach MinistryCategory = "outreach"
)

// Ministry is a church ministry or outreach program.
type Ministry struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Leader      string           `json:"leader"`
	MeetingTime string           `json:"meeting_time"`
	ImageURL    string           `json:"image_url"`
	SortOrder   int              `json:"sort_order"`
	Category    MinistryCategory `json:"category"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Sermon is a recorded sermon.
type Sermon struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Speaker            string    `json:"speaker"`
	SermonDate         string    `json:"sermon_date"`
	VideoURL           string    `json:"video_url"`
	AudioURL           string    `json:"audio_url"`
	ScriptureReference string    `json:"scripture_reference"`
	SeriesName         string    `json:"series_name"`
	ThumbnailURL       string    `json:"thumbnail_url"`
	DurationMinutes    int       `json:"duration_minutes"`
	IsFeatured         bool      `json:"is_featured"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// GalleryImage is a photo shown in the gallery.
type GalleryImage struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ServiceTime is a recurring service slot.
type ServiceTime struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Time        string    `json:"time"`
	Description string    `json:"description"`
	Audience    string    `json:"audience"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Pastor is a member of the pastoral staff.
type Pastor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Title       string    `json:"title"`
	Bio         string    `json:"bio"`
	ImageURL    string    `json:"image_url"`
	FacebookURL string    `json:"facebook_url"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Info is the single church contact record.
type Info struct {
	ID                string    `json:"id"`
	ChurchName        string    `json:"church_name"`
	PastorName        string    `json:"pastor_name"`
	PastorEmail       string    `json:"pastor_email"`
	PastorPhone       string    `json:"pastor_phone"`
	Address           string    `json:"address"`
	City              string    `json:"city"`
	State             string    `json:"state"`
	Zip               string    `json:"zip"`
	Phone             string    `json:"phone"`
	Email             string    `json:"email"`
	OfficeHours       string    `json:"office_hours"`
	FallbackStreamURL string    `json:"fallback_stream_url"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SortItem assigns a sort position to a record.
type SortItem struct {
	ID        string `json:"id"`
	SortOrder int    `json:"sort_order"`
}

// ActivityLog is an audit entry written after admin actions.
type ActivityLog struct {
	ID                string         `json:"id"`
	ActionType        string         `json:"action_type"`
	ActionDescription string         `json:"action_description"`
	EntityType        string         `json:"entity_type"`
	EntityID          string         `json:"entity_id"`
	UserID            string         `json:"user_id"`
	UserEmail         string         `json:"user_email"`
	Metadata          map[string]any `json:"metadata"`
	PagePath          string         `json:"page_path"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Activity action types.
const (
	ActionCreateEvent       = "create_event"
	ActionUpdateEvent       = "update_event"
	ActionDeleteEvent       = "delete_event"
	ActionCreateMinistry    = "create_ministry"
	ActionUpdateMinistry    = "update_ministry"
	ActionDeleteMinistry    = "delete_ministry"
	ActionCreateSermon      = "create_sermon"
	ActionUpdateSermon      = "update_sermon"
	ActionDeleteSermon      = "delete_sermon"
	ActionUploadImage       = "upload_image"
	ActionDeleteImage       = "delete_image"
	ActionUpdateChurchInfo  = "update_church_info"
	ActionCreatePastor      = "create_pastor"
	ActionUpdatePastor      = "update_pastor"
	ActionDeletePastor      = "delete_pastor"
	ActionCreateServiceTime = "create_service_time"
	ActionUpdateServiceTime = "update_service_time"
	ActionDeleteServiceTime = "delete_service_time"
	ActionClearLogs         = "clear_logs"
)

// LogFilter narrows an activity log listing. Zero fields do not filter.
// End is inclusive to the end of its day.
type LogFilter struct {
	Start      time.Time
	End        time.Time
	ActionType string
	EntityType string
	UserID     string
	Limit      int
	Offset     int
}

// LogPage is one page of activity logs with the total match count.
type LogPage struct {
	Logs       []ActivityLog `json:"logs"`
	TotalCount int           `json:"total_count"`
}

// LogSummary counts activity logs by action type.
type LogSummary struct {
	Total        int            `json:"total"`
	ByActionType map[string]int `json:"by_action_type"`
}
