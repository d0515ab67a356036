package models

import "time"

// ActivityType is one kind of room activity event.
type ActivityType string

const (
	ActivityMessage    ActivityType = "message"
	ActivityJoin       ActivityType = "join"
	ActivityLeave      ActivityType = "leave"
	ActivityFileUpload ActivityType = "file_upload"
	ActivityReaction   ActivityType = "reaction"
	ActivityMention    ActivityType = "mention"
)

// EngagementTier buckets an actor by recent message frequency.
type EngagementTier string

const (
	TierVeryActive EngagementTier = "very_active"
	TierActive     EngagementTier = "active"
	TierPassive    EngagementTier = "passive"
	TierLurker     EngagementTier = "lurker"
)

// MetricSample is one periodic reading of a room's activity state.
type MetricSample struct {
	Timestamp    time.Time              `json:"timestamp"`
	ActiveUsers  int                    `json:"active_users"`
	MessageCount int                    `json:"message_count"`
	Engagement   map[EngagementTier]int `json:"engagement"`
	PeakUsers    int                    `json:"peak_users"`
}

// RoomMetrics is the current snapshot returned to callers; the same values
// are appended to the rolling sample history.
type RoomMetrics struct {
	RoomID          string                 `json:"room_id"`
	ActiveUsers     int                    `json:"active_users"`
	MessagesPerHour int                    `json:"messages_per_hour"`
	UserEngagement  map[EngagementTier]int `json:"user_engagement"`
	PeakUsers       int                    `json:"peak_users"`
	SampledAt       time.Time              `json:"sampled_at"`
}

// InsightPeriod selects the aggregation window for RoomInsights.
type InsightPeriod string

const (
	PeriodHour  InsightPeriod = "hour"
	PeriodDay   InsightPeriod = "day"
	PeriodWeek  InsightPeriod = "week"
	PeriodMonth InsightPeriod = "month"
)

// Contributor pairs an actor with their message count for rankings.
type Contributor struct {
	ActorID  string `json:"actor_id"`
	Messages int    `json:"messages"`
}

// ActivityTrend classifies the direction of recent activity.
type ActivityTrend string

const (
	TrendIncreasing ActivityTrend = "increasing"
	TrendStable     ActivityTrend = "stable"
	TrendDecreasing ActivityTrend = "decreasing"
)

// RoomInsights aggregates the rolling history over a requested period.
type RoomInsights struct {
	RoomID           string        `json:"room_id"`
	Period           InsightPeriod `json:"period"`
	TotalMessages    int           `json:"total_messages"`
	UniqueActors     int           `json:"unique_actors"`
	AvgConcurrent    float64       `json:"avg_concurrent"`
	PeakActivityAt   time.Time     `json:"peak_activity_at"`
	EngagementScore  float64       `json:"engagement_score"`
	Trend            ActivityTrend `json:"trend"`
	TopContributors  []Contributor `json:"top_contributors"`
	HourDistribution [24]int       `json:"hour_distribution"`
}

// HealthIssue names a detected problem and a remediation hint.
type HealthIssue struct {
	Code       string `json:"code"`
	Suggestion string `json:"suggestion"`
}

// RoomHealth summarizes a room's condition as 0-100 sub-scores plus a
// categorical overall bucket.
type RoomHealth struct {
	RoomID          string        `json:"room_id"`
	Engagement      float64       `json:"engagement"`
	Participation   float64       `json:"participation"`
	Moderation      float64       `json:"moderation"`
	Growth          float64       `json:"growth"`
	Overall         string        `json:"overall"`
	Issues          []HealthIssue `json:"issues,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`
}
