package search

import (
	"github.com/Sternrassler/mindshare-rank/pkg/achievements"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
)

// Status is the state of one timeframe's search.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	// StatusError means no page of the timeframe could be fetched, so the
	// absence of a match says nothing.
	StatusError Status = "error"
)

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	return s == StatusFound || s == StatusNotFound || s == StatusError
}

// Outcome is the per-timeframe result exposed to callers.
type Outcome struct {
	Status   Status             `json:"status"`
	Entry    *leaderboard.Entry `json:"entry,omitempty"`
	Progress int                `json:"progress"`
	Error    string             `json:"error,omitempty"`
}

// UserMeta is the header data of the searched user.
type UserMeta struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Snapshot is a consistent copy of the coordinator state.
type Snapshot struct {
	Generation   uint64                            `json:"generation"`
	Query        string                            `json:"query"`
	Searching    bool                              `json:"searching"`
	Outcomes     map[leaderboard.Timeframe]Outcome `json:"outcomes"`
	User         *UserMeta                         `json:"user,omitempty"`
	Achievements []achievements.Achievement        `json:"achievements"`
}

// Outcome returns the outcome of a timeframe.
func (s Snapshot) Outcome(tf leaderboard.Timeframe) (Outcome, bool) {
	o, ok := s.Outcomes[tf]
	return o, ok
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Outcomes = make(map[leaderboard.Timeframe]Outcome, len(s.Outcomes))
	for tf, o := range s.Outcomes {
		if o.Entry != nil {
			entry := *o.Entry
			o.Entry = &entry
		}
		out.Outcomes[tf] = o
	}
	if s.User != nil {
		user := *s.User
		out.User = &user
	}
	if s.Achievements != nil {
		out.Achievements = append([]achievements.Achievement(nil), s.Achievements...)
	}
	return out
}

// UpdateKind tells subscribers what changed.
type UpdateKind string

const (
	UpdateReset      UpdateKind = "reset"
	UpdateProgress   UpdateKind = "progress"
	UpdateOutcome    UpdateKind = "outcome"
	UpdateHistorical UpdateKind = "historical"
	UpdateComplete   UpdateKind = "complete"
)

// Update is published to subscribers after every committed change.
// Timeframe is set for progress and outcome updates.
type Update struct {
	Kind      UpdateKind            `json:"kind"`
	Timeframe leaderboard.Timeframe `json:"timeframe,omitempty"`
	Snapshot  Snapshot              `json:"snapshot"`
}

func userFromEntry(e leaderboard.Entry) *UserMeta {
	avatar := e.AvatarURL
	if avatar == "" {
		avatar = achievements.AvatarURL(e.Username)
	}
	return &UserMeta{
		Username:    e.Username,
		DisplayName: e.DisplayName,
		AvatarURL:   avatar,
	}
}
