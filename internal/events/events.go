// Package events provides the in-process event stream for persistence,
// statistics and session notifications.
package events

import "time"

// EventType はイベントの種別
type EventType string

const (
	// EventSnapshotWritten は writer がスナップショットを置き換えた後に出る
	EventSnapshotWritten EventType = "snapshot_written"
	// EventSnapshotFailed は書き出しを断念したときに出る
	EventSnapshotFailed EventType = "snapshot_failed"
	// EventStatsReport は統計周期ごとに出る
	EventStatsReport EventType = "stats_report"
	// EventSessionOpened は接続を受け付けたときに出る
	EventSessionOpened EventType = "session_opened"
	// EventSessionClosed はセッション終了時に出る
	EventSessionClosed EventType = "session_closed"
)

// Event は1件の通知
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData は種別ごとの付帯情報
type EventData struct {
	Keys       int         `json:"keys,omitempty"`
	Generation uint64      `json:"generation,omitempty"`
	Duration   string      `json:"duration,omitempty"`
	Error      string      `json:"error,omitempty"`
	Remote     string      `json:"remote,omitempty"`
	Requests   *Requests   `json:"requests,omitempty"`
	PerKey     []KeyCounts `json:"per_key,omitempty"`
}

// Requests は統計レポートのリクエスト数
type Requests struct {
	TotalGets  uint64 `json:"total_gets"`
	TotalSets  uint64 `json:"total_sets"`
	RecentGets uint64 `json:"recent_gets"`
	RecentSets uint64 `json:"recent_sets"`
}

// KeyCounts はキー別統計表の1行
type KeyCounts struct {
	Key    string `json:"key"`
	Reads  uint64 `json:"reads"`
	Writes uint64 `json:"writes"`
}

// NewSnapshotWrittenEvent はスナップショット書き出し完了のイベントを作る
func NewSnapshotWrittenEvent(keys int, generation uint64, took time.Duration) Event {
	return Event{
		Type:      EventSnapshotWritten,
		Timestamp: time.Now(),
		Source:    "writer",
		Data: EventData{
			Keys:       keys,
			Generation: generation,
			Duration:   took.String(),
		},
	}
}

// NewSnapshotFailedEvent はスナップショット書き出し失敗のイベントを作る
func NewSnapshotFailedEvent(generation uint64, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventSnapshotFailed,
		Timestamp: time.Now(),
		Source:    "writer",
		Data: EventData{
			Generation: generation,
			Error:      errMsg,
		},
	}
}

// NewStatsReportEvent は統計レポートのイベントを作る
func NewStatsReportEvent(req Requests, perKey []KeyCounts) Event {
	return Event{
		Type:      EventStatsReport,
		Timestamp: time.Now(),
		Source:    "stats",
		Data: EventData{
			Keys:     len(perKey),
			Requests: &req,
			PerKey:   perKey,
		},
	}
}

// NewSessionOpenedEvent は接続開始のイベントを作る
func NewSessionOpenedEvent(remote string) Event {
	return Event{
		Type:      EventSessionOpened,
		Timestamp: time.Now(),
		Source:    "acceptor",
		Data:      EventData{Remote: remote},
	}
}

// NewSessionClosedEvent は接続終了のイベントを作る
func NewSessionClosedEvent(remote string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventSessionClosed,
		Timestamp: time.Now(),
		Source:    "session",
		Data:      EventData{Remote: remote, Error: errMsg},
	}
}
