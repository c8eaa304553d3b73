package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type (
	Action      string
	RecordKind  string
	MediaType   string
	ReportState string
)

const (
	ActionDelete Action = "delete"
	ActionWarn   Action = "warn"
	ActionMute   Action = "mute"
	ActionKick   Action = "kick"
	ActionBan    Action = "ban"
)

const (
	RecordBan     RecordKind = "ban"
	RecordWarning RecordKind = "warning"
	RecordMute    RecordKind = "mute"
)

const (
	MediaPhoto     MediaType = "photo"
	MediaVideo     MediaType = "video"
	MediaDocument  MediaType = "document"
	MediaSticker   MediaType = "sticker"
	MediaVoice     MediaType = "voice"
	MediaVideoNote MediaType = "video_note"
	MediaAnimation MediaType = "animation"
	MediaContact   MediaType = "contact"
	MediaLocation  MediaType = "location"
	MediaPoll      MediaType = "poll"
	MediaForward   MediaType = "forward"
	MediaReply     MediaType = "reply"
	MediaURL       MediaType = "url"
)

const (
	ReportPending   ReportState = "pending"
	ReportResolved  ReportState = "resolved"
	ReportDismissed ReportState = "dismissed"
)

// GlobalChatID is stored as chat_id of records that apply to every chat.
const GlobalChatID int64 = 0

var ErrUnknownAction = errors.New("unknown action")

var (
	filterActions = []Action{ActionDelete, ActionWarn, ActionMute, ActionKick, ActionBan}
	mediaTypes    = []MediaType{
		MediaPhoto, MediaVideo, MediaDocument, MediaSticker, MediaVoice, MediaVideoNote,
		MediaAnimation, MediaContact, MediaLocation, MediaPoll, MediaForward, MediaReply, MediaURL,
	}
)

func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range filterActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", errors.WithMessage(ErrUnknownAction, s)
}

func ParseMediaType(s string) (MediaType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range mediaTypes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

func MediaTypes() []MediaType {
	return append([]MediaType(nil), mediaTypes...)
}

type (
	Admin struct {
		ChatID    int64     `db:"chat_id"`
		UserID    int64     `db:"user_id"`
		AddedBy   int64     `db:"added_by"`
		CreatedAt time.Time `db:"created_at"`
	}

	WhitelistEntry struct {
		ChatID    int64     `db:"chat_id"`
		UserID    int64     `db:"user_id"`
		IsGlobal  bool      `db:"is_global"`
		AddedBy   int64     `db:"added_by"`
		CreatedAt time.Time `db:"created_at"`
	}

	// ModerationRecord is an append-only ban, warning or mute event.
	ModerationRecord struct {
		ID        int64        `db:"id"`
		Kind      RecordKind   `db:"kind"`
		ChatID    int64        `db:"chat_id"`
		UserID    int64        `db:"user_id"`
		IsGlobal  bool         `db:"is_global"`
		ActorID   int64        `db:"actor_id"`
		Reason    string       `db:"reason"`
		CreatedAt time.Time    `db:"created_at"`
		ExpiresAt sql.NullTime `db:"expires_at"`
	}

	WordFilter struct {
		ID        int64     `db:"id"`
		ChatID    int64     `db:"chat_id"`
		Pattern   string    `db:"pattern"`
		IsRegex   bool      `db:"is_regex"`
		Action    Action    `db:"action"`
		CreatedBy int64     `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}

	URLFilter struct {
		ID          int64     `db:"id"`
		ChatID      int64     `db:"chat_id"`
		Domain      string    `db:"domain"`
		IsWhitelist bool      `db:"is_whitelist"`
		Action      Action    `db:"action"`
		CreatedBy   int64     `db:"created_by"`
		CreatedAt   time.Time `db:"created_at"`
	}

	MediaLock struct {
		ChatID    int64     `db:"chat_id"`
		MediaType MediaType `db:"media_type"`
		Action    Action    `db:"action"`
		CreatedBy int64     `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}

	PendingCaptcha struct {
		ChatID             int64     `db:"chat_id"`
		UserID             int64     `db:"user_id"`
		Token              string    `db:"token"`
		Answer             int       `db:"answer"`
		ChallengeMessageID int       `db:"challenge_message_id"`
		JoinTime           time.Time `db:"join_time"`
		ExpiresAt          time.Time `db:"expires_at"`
	}

	Report struct {
		ID             int64         `db:"id"`
		ChatID         int64         `db:"chat_id"`
		ReporterID     int64         `db:"reporter_id"`
		ReportedUserID int64         `db:"reported_user_id"`
		MessageID      int           `db:"message_id"`
		Reason         string        `db:"reason"`
		Status         ReportState   `db:"status"`
		HandledBy      sql.NullInt64 `db:"handled_by"`
		CreatedAt      time.Time     `db:"created_at"`
		ResolvedAt     sql.NullTime  `db:"resolved_at"`
	}

	Note struct {
		ChatID    int64     `db:"chat_id"`
		Name      string    `db:"name"`
		Content   string    `db:"content"`
		CreatedBy int64     `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}

	Rules struct {
		ChatID    int64     `db:"chat_id"`
		Content   string    `db:"content"`
		UpdatedBy int64     `db:"updated_by"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	CustomCommand struct {
		ChatID    int64     `db:"chat_id"`
		Command   string    `db:"command"`
		Response  string    `db:"response"`
		CreatedBy int64     `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (r *ModerationRecord) ActiveAt(now time.Time) bool {
	return !r.ExpiresAt.Valid || r.ExpiresAt.Time.After(now)
}

func (r *Report) IsPending() bool {
	return r.Status == ReportPending
}
