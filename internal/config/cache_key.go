package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ParticipantLoginKey returns the cache key for a participant's login session
func (r *CacheKeyStruct) ParticipantLoginKey(participantID int) string {
	return fmt.Sprintf("login:%d", participantID)
}

// DraftTextKey returns the hash key holding a participant's draft answers
// for one marathon attempt. Fields are question IDs, values are draft text.
func (r *CacheKeyStruct) DraftTextKey(marathonID string, participantID int) string {
	return fmt.Sprintf("participant:%d:marathon:%s:drafts", participantID, marathonID)
}

// DraftSavedAtKey returns the hash key holding per-question draft save
// timestamps (unix seconds) alongside DraftTextKey.
func (r *CacheKeyStruct) DraftSavedAtKey(marathonID string, participantID int) string {
	return fmt.Sprintf("participant:%d:marathon:%s:draft_times", participantID, marathonID)
}

// MarathonLeaderboardKey returns the sorted-set key holding completion
// counts per participant for one marathon.
func (r *CacheKeyStruct) MarathonLeaderboardKey(marathonID string) string {
	return fmt.Sprintf("marathon:%s:leaderboard", marathonID)
}

// LeaderboardRefreshChannel returns the Pub/Sub channel notified once per
// completed attempt so ranking consumers can recompute.
func (r *CacheKeyStruct) LeaderboardRefreshChannel(marathonID string) string {
	return fmt.Sprintf("marathon:%s:leaderboard_refresh", marathonID)
}

// ProgressChannel returns the Pub/Sub channel mirroring progress events
// for one topic (marathon id or report task key).
func (r *CacheKeyStruct) ProgressChannel(topicKey string) string {
	return fmt.Sprintf("progress:%s", topicKey)
}

var CacheKey = NewCacheKeyStruct()
