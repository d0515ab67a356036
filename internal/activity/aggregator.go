package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvdund/agent-english-teacher/internal/config"
	"github.com/lvdund/agent-english-teacher/internal/models"
)

// ModerationSource lets health scoring see recent moderation pressure.
type ModerationSource interface {
	History(roomID string, limit int) []models.ModerationOutcome
}

type actorState struct {
	msgTimes     []time.Time
	uploads      int
	reactions    int
	mentions     int
	present      bool
	sessionStart time.Time
	totalSession time.Duration
	lastSeen     time.Time
	hourly       [24]int
}

type roomState struct {
	actors  map[string]*actorState
	samples []models.MetricSample
	peak    int
}

// Aggregator is the sole mutator of per-room activity state and the rolling
// metric history. All numeric outputs are deterministic functions of the
// recorded events; an empty activity set scores 0, never errors.
type Aggregator struct {
	mu     sync.RWMutex
	rooms  map[string]*roomState
	modsrc ModerationSource
	cfg    config.ActivityConfig
	log    zerolog.Logger
	now    func() time.Time
}

func NewAggregator(cfg config.ActivityConfig, modsrc ModerationSource, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		rooms:  make(map[string]*roomState),
		modsrc: modsrc,
		cfg:    cfg,
		log:    log.With().Str("component", "activity").Logger(),
		now:    time.Now,
	}
}

// Record consumes one activity event. Join resets the actor's session-start
// marker; leave folds the elapsed time into the session total.
func (a *Aggregator) Record(roomID, actorID string, event models.ActivityType) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	room := a.roomFor(roomID)
	actor, ok := room.actors[actorID]
	if !ok {
		actor = &actorState{}
		room.actors[actorID] = actor
	}
	actor.lastSeen = now

	switch event {
	case models.ActivityMessage:
		actor.msgTimes = append(actor.msgTimes, now)
		actor.hourly[now.Hour()]++
	case models.ActivityJoin:
		actor.present = true
		actor.sessionStart = now
	case models.ActivityLeave:
		if actor.present && !actor.sessionStart.IsZero() {
			actor.totalSession += now.Sub(actor.sessionStart)
		}
		actor.present = false
	case models.ActivityFileUpload:
		actor.uploads++
	case models.ActivityReaction:
		actor.reactions++
	case models.ActivityMention:
		actor.mentions++
	}
}

// Snapshot computes current room metrics, appends them to the bounded
// rolling history and returns them. Unknown rooms yield nil.
func (a *Aggregator) Snapshot(roomID string) *models.RoomMetrics {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	room, ok := a.rooms[roomID]
	if !ok {
		return nil
	}

	hourAgo := now.Add(-time.Hour)
	active := 0
	totalHourly := 0
	engagement := map[models.EngagementTier]int{
		models.TierVeryActive: 0,
		models.TierActive:     0,
		models.TierPassive:    0,
		models.TierLurker:     0,
	}
	for _, actor := range room.actors {
		actor.msgTimes = trimBefore(actor.msgTimes, now.Add(-a.cfg.Retention))
		hourly := countSince(actor.msgTimes, hourAgo)
		totalHourly += hourly
		if actor.present {
			active++
		}
		switch {
		case hourly > 10:
			engagement[models.TierVeryActive]++
		case hourly >= 3:
			engagement[models.TierActive]++
		case hourly >= 1:
			engagement[models.TierPassive]++
		default:
			engagement[models.TierLurker]++
		}
	}
	if active > room.peak {
		room.peak = active
	}

	sample := models.MetricSample{
		Timestamp:    now,
		ActiveUsers:  active,
		MessageCount: totalHourly,
		Engagement:   engagement,
		PeakUsers:    room.peak,
	}
	room.samples = append(room.samples, sample)
	room.samples = trimSamples(room.samples, now.Add(-a.cfg.Retention))

	return &models.RoomMetrics{
		RoomID:          roomID,
		ActiveUsers:     active,
		MessagesPerHour: totalHourly,
		UserEngagement:  engagement,
		PeakUsers:       room.peak,
		SampledAt:       now,
	}
}

// Insights aggregates the rolling history and per-actor activity over the
// requested period. Contributor ranking counts in-period messages only; the
// hour-of-day distribution stays all-time and maps when the room is alive.
func (a *Aggregator) Insights(roomID string, period models.InsightPeriod) *models.RoomInsights {
	now := a.now()
	cutoff := now.Add(-periodDuration(period))

	a.mu.RLock()
	defer a.mu.RUnlock()

	room, ok := a.rooms[roomID]
	if !ok {
		return nil
	}

	totalMessages := 0
	uniqueActors := 0
	activeWriters := 0
	var contributors []models.Contributor
	var hourDist [24]int
	for actorID, actor := range room.actors {
		if actor.lastSeen.Before(cutoff) {
			continue
		}
		uniqueActors++
		inPeriod := countSince(actor.msgTimes, cutoff)
		totalMessages += inPeriod
		if inPeriod > 0 {
			activeWriters++
			contributors = append(contributors, models.Contributor{ActorID: actorID, Messages: inPeriod})
		}
		for hour, count := range actor.hourly {
			hourDist[hour] += count
		}
	}

	var inPeriodSamples []models.MetricSample
	for _, sample := range room.samples {
		if !sample.Timestamp.Before(cutoff) {
			inPeriodSamples = append(inPeriodSamples, sample)
		}
	}

	avgConcurrent := 0.0
	var peakAt time.Time
	peakCount := -1
	for _, sample := range inPeriodSamples {
		avgConcurrent += float64(sample.ActiveUsers)
		if sample.MessageCount > peakCount {
			peakCount = sample.MessageCount
			peakAt = sample.Timestamp
		}
	}
	if len(inPeriodSamples) > 0 {
		avgConcurrent /= float64(len(inPeriodSamples))
	}

	sort.Slice(contributors, func(i, j int) bool {
		if contributors[i].Messages != contributors[j].Messages {
			return contributors[i].Messages > contributors[j].Messages
		}
		return contributors[i].ActorID < contributors[j].ActorID
	})
	if len(contributors) > 10 {
		contributors = contributors[:10]
	}

	return &models.RoomInsights{
		RoomID:           roomID,
		Period:           period,
		TotalMessages:    totalMessages,
		UniqueActors:     uniqueActors,
		AvgConcurrent:    avgConcurrent,
		PeakActivityAt:   peakAt,
		EngagementScore:  engagementScore(totalMessages, uniqueActors, activeWriters),
		Trend:            classifyTrend(room.samples),
		TopContributors:  contributors,
		HourDistribution: hourDist,
	}
}

// Health derives four 0-100 sub-scores and buckets their average.
func (a *Aggregator) Health(roomID string) *models.RoomHealth {
	insights := a.Insights(roomID, models.PeriodDay)
	if insights == nil {
		return nil
	}

	participation := 0.0
	if insights.UniqueActors > 0 {
		writers := 0
		a.mu.RLock()
		if room, ok := a.rooms[roomID]; ok {
			cutoff := a.now().Add(-periodDuration(models.PeriodDay))
			for _, actor := range room.actors {
				if countSince(actor.msgTimes, cutoff) > 0 {
					writers++
				}
			}
		}
		a.mu.RUnlock()
		participation = float64(writers) / float64(insights.UniqueActors) * 100
	}

	moderationScore := 100.0
	if a.modsrc != nil {
		cutoff := a.now().Add(-24 * time.Hour)
		recent := 0
		for _, outcome := range a.modsrc.History(roomID, 0) {
			if !outcome.AppliedAt.Before(cutoff) {
				recent++
			}
		}
		moderationScore -= float64(recent) * 10
		if moderationScore < 0 {
			moderationScore = 0
		}
	}

	growth := 50.0
	switch insights.Trend {
	case models.TrendIncreasing:
		growth = 80
	case models.TrendDecreasing:
		growth = 30
	}

	health := &models.RoomHealth{
		RoomID:        roomID,
		Engagement:    insights.EngagementScore,
		Participation: participation,
		Moderation:    moderationScore,
		Growth:        growth,
	}

	avg := (health.Engagement + health.Participation + health.Moderation + health.Growth) / 4
	switch {
	case avg >= 80:
		health.Overall = "excellent"
	case avg >= 60:
		health.Overall = "good"
	case avg >= 40:
		health.Overall = "fair"
	default:
		health.Overall = "poor"
	}

	if health.Engagement < 30 {
		health.Issues = append(health.Issues, models.HealthIssue{
			Code:       "low_engagement",
			Suggestion: "prompt the room with discussion questions or scheduled activities",
		})
		health.Recommendations = append(health.Recommendations, "post a conversation starter to re-engage quiet members")
	}
	if health.Participation < 30 {
		health.Issues = append(health.Issues, models.HealthIssue{
			Code:       "low_participation",
			Suggestion: "most members are reading without writing; consider smaller breakout rooms",
		})
	}
	if health.Moderation < 50 {
		health.Issues = append(health.Issues, models.HealthIssue{
			Code:       "high_moderation_load",
			Suggestion: "frequent moderation actions in the last day; review room rules with members",
		})
	}
	if health.Growth < 40 {
		health.Recommendations = append(health.Recommendations, "activity is trending down; announce upcoming sessions to bring members back")
	}
	return health
}

// Collect snapshots every tracked room; the scheduler drives it. Returns
// the number of rooms sampled.
func (a *Aggregator) Collect(now time.Time) int {
	a.mu.RLock()
	roomIDs := make([]string, 0, len(a.rooms))
	for roomID := range a.rooms {
		roomIDs = append(roomIDs, roomID)
	}
	a.mu.RUnlock()

	for _, roomID := range roomIDs {
		a.Snapshot(roomID)
	}
	return len(roomIDs)
}

// Forget drops all activity state for a room, e.g. after deletion.
func (a *Aggregator) Forget(roomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.rooms, roomID)
}

// Stats is the read-only projection for the admin surface.
type Stats struct {
	Rooms         int `json:"rooms"`
	TrackedActors int `json:"tracked_actors"`
	Samples       int `json:"samples"`
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{Rooms: len(a.rooms)}
	for _, room := range a.rooms {
		stats.TrackedActors += len(room.actors)
		stats.Samples += len(room.samples)
	}
	return stats
}

func (a *Aggregator) roomFor(roomID string) *roomState {
	room, ok := a.rooms[roomID]
	if !ok {
		room = &roomState{actors: make(map[string]*actorState)}
		a.rooms[roomID] = room
	}
	return room
}

// engagementScore weights average messages-per-actor (60%) against the
// share of actors who wrote at all (40%), clamped to 0-100.
func engagementScore(totalMessages, uniqueActors, activeWriters int) float64 {
	if uniqueActors == 0 {
		return 0
	}
	avgPerActor := float64(totalMessages) / float64(uniqueActors)
	msgScore := avgPerActor * 10
	if msgScore > 100 {
		msgScore = 100
	}
	partScore := float64(activeWriters) / float64(uniqueActors) * 100
	return 0.6*msgScore + 0.4*partScore
}

// classifyTrend compares the most recent 5 samples against the preceding 5
// by hourly message rate; a change beyond ±10% moves the classification.
func classifyTrend(samples []models.MetricSample) models.ActivityTrend {
	if len(samples) < 10 {
		return models.TrendStable
	}
	recent := samples[len(samples)-5:]
	previous := samples[len(samples)-10 : len(samples)-5]

	recentAvg := sampleAvg(recent)
	previousAvg := sampleAvg(previous)
	if previousAvg == 0 {
		if recentAvg > 0 {
			return models.TrendIncreasing
		}
		return models.TrendStable
	}

	change := (recentAvg - previousAvg) / previousAvg
	switch {
	case change > 0.10:
		return models.TrendIncreasing
	case change < -0.10:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func sampleAvg(samples []models.MetricSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	total := 0
	for _, sample := range samples {
		total += sample.MessageCount
	}
	return float64(total) / float64(len(samples))
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && times[idx].Before(cutoff) {
		idx++
	}
	return times[idx:]
}

func countSince(times []time.Time, cutoff time.Time) int {
	count := 0
	for i := len(times) - 1; i >= 0; i-- {
		if times[i].Before(cutoff) {
			break
		}
		count++
	}
	return count
}

func trimSamples(samples []models.MetricSample, cutoff time.Time) []models.MetricSample {
	idx := 0
	for idx < len(samples) && samples[idx].Timestamp.Before(cutoff) {
		idx++
	}
	return samples[idx:]
}

func periodDuration(period models.InsightPeriod) time.Duration {
	switch period {
	case models.PeriodHour:
		return time.Hour
	case models.PeriodWeek:
		return 7 * 24 * time.Hour
	case models.PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
