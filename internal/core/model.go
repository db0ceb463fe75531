package core

import "time"

// TurnEvent is a single turn-change notification as received from the
// game-turn service.
type TurnEvent struct {
	GameID     string
	GameName   string
	UserName   string // platform-native (Steam) username of the player now up
	Round      string
	CivName    string
	LeaderName string
	ReceivedAt time.Time
}

// TurnRecord is the Current-Turn Record, one per tracked game.
type TurnRecord struct {
	Key            string `json:"key"`
	GameName       string `json:"gameName"`
	GameID         string `json:"gameId"`
	SteamUsername  string `json:"steamUsername"`
	DiscordUserID  string `json:"discordUserId"`
	RoundNumber    string `json:"roundNumber"`
	TurnStartedAt  string `json:"turnStartedAt"`
	LastReminderAt string `json:"lastReminderAt"` // empty = not reminded this turn
	ReminderCount  int    `json:"reminderCount"`
}

// UnknownDuration marks a closed turn whose start time was missing or
// unparseable.
const UnknownDuration int64 = -1

// HistoryRecord is a Turn-History Record for one completed turn.
type HistoryRecord struct {
	GameKey         string `json:"gameKey"`
	RowKey          string `json:"rowKey"`
	GameName        string `json:"gameName"`
	GameID          string `json:"gameId"`
	SteamUsername   string `json:"steamUsername"`
	RoundNumber     string `json:"roundNumber"`
	TurnStartedAt   string `json:"turnStartedAt"`
	TurnCompletedAt string `json:"turnCompletedAt"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// TurnNotice is pushed to live stream subscribers after a turn is tracked.
type TurnNotice struct {
	DeliveryID string `json:"deliveryId,omitempty"`
	GameKey    string `json:"gameKey"`
	GameName   string `json:"gameName"`
	Player     string `json:"steamUsername"`
	Mapped     bool   `json:"mapped"`
	Round      string `json:"roundNumber"`
	CivName    string `json:"civName"`
	LeaderName string `json:"leaderName"`
	Transition string `json:"transition"`
	StartedAt  string `json:"turnStartedAt"`
	Delivered  bool   `json:"delivered"`
}
