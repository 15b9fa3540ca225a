package config

import "time"

// QueueConfig tunes the admission queue and its background processor.
// Defaults are used when variables are not set.
type QueueConfig struct {
	DefaultThreshold int64         // active-set bound used when an event has none configured
	AdmissionRate    int64         // users promoted per second, used for wait estimates
	IdleTimeout      time.Duration // heartbeat age after which a participant is evicted
	ProcessInterval  time.Duration // how often the processor ticks
	ActiveTTL        time.Duration // how long an admitted user may hold an active slot
	MaxTickFailures  int           // consecutive failed ticks before the breaker opens
	BreakerCooldown  time.Duration // pause before a tripped processor resumes
}

// LoadQueueConfig reads queue tuning from the environment.
func LoadQueueConfig() QueueConfig {
	return QueueConfig{
		DefaultThreshold: int64(envInt("QUEUE_DEFAULT_THRESHOLD", 100)),
		AdmissionRate:    int64(envInt("QUEUE_ADMISSION_RATE", 5)),
		IdleTimeout:      envDur("QUEUE_IDLE_TIMEOUT", 90*time.Second),
		ProcessInterval:  envDur("QUEUE_PROCESS_INTERVAL", 10*time.Second),
		ActiveTTL:        envDur("QUEUE_ACTIVE_TTL", 10*time.Minute),
		MaxTickFailures:  envInt("QUEUE_MAX_TICK_FAILURES", 3),
		BreakerCooldown:  envDur("QUEUE_BREAKER_COOLDOWN", time.Minute),
	}
}

// HoldConfig tunes reservation holds, the reaper and the advisory
// resource locks.
type HoldConfig struct {
	HoldDuration   time.Duration // how long an unpaid reservation keeps its inventory
	ReaperInterval time.Duration // how often expired holds are reclaimed
	LockTTL        time.Duration // TTL of the advisory per-resource lock
	MaxSeats       int           // max seats in one reservation
	MaxTickets     int           // max ticket units in one reservation
}

// LoadHoldConfig reads hold tuning from the environment.
func LoadHoldConfig() HoldConfig {
	return HoldConfig{
		HoldDuration:   envDur("HOLD_DURATION", 5*time.Minute),
		ReaperInterval: envDur("REAPER_INTERVAL", 30*time.Second),
		LockTTL:        envDur("LOCK_TTL", 10*time.Second),
		MaxSeats:       envInt("MAX_SEATS_PER_RESERVATION", 1),
		MaxTickets:     envInt("MAX_TICKETS_PER_RESERVATION", 4),
	}
}

// RealtimeConfig tunes the websocket fanout layer.
type RealtimeConfig struct {
	SessionTTL time.Duration // how long a connection session survives disconnects
}

// LoadRealtimeConfig reads realtime tuning from the environment.
func LoadRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		SessionTTL: envDur("SESSION_TTL", time.Hour),
	}
}
