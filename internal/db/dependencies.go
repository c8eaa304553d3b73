package db

import (
	"context"
	"time"
)

type (
	SettingsStore interface {
		GetSettings(ctx context.Context, chatID int64) (*Settings, error)
		SetSettings(ctx context.Context, settings *Settings) error
		ListChatIDs(ctx context.Context) ([]int64, error)
	}

	AdminStore interface {
		AddAdmin(ctx context.Context, admin *Admin) error
		RemoveAdmin(ctx context.Context, chatID, userID int64) (bool, error)
		IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
		ListAdmins(ctx context.Context, chatID int64) ([]int64, error)
	}

	WhitelistStore interface {
		AddWhitelist(ctx context.Context, entry *WhitelistEntry) error
		RemoveWhitelist(ctx context.Context, chatID, userID int64) (bool, error)
		IsWhitelisted(ctx context.Context, chatID, userID int64) (bool, error)
		// ListWhitelist returns the chat's entries and the global ones, newest first.
		ListWhitelist(ctx context.Context, chatID int64, limit int) ([]WhitelistEntry, error)
	}

	RecordStore interface {
		AddRecord(ctx context.Context, record *ModerationRecord) (int64, error)
		CountWarnings(ctx context.Context, chatID, userID int64) (int, error)
		IsBanned(ctx context.Context, chatID, userID int64, now time.Time) (bool, error)
		IsMuted(ctx context.Context, chatID, userID int64, now time.Time) (bool, error)
		DeleteRecords(ctx context.Context, kind RecordKind, chatID, userID int64) (int64, error)
		DeleteLatestWarning(ctx context.Context, chatID, userID int64) (bool, error)
	}

	FilterStore interface {
		UpsertWordFilter(ctx context.Context, filter *WordFilter) error
		DeleteWordFilter(ctx context.Context, chatID int64, pattern string) (bool, error)
		ListWordFilters(ctx context.Context, chatID int64) ([]WordFilter, error)
		UpsertURLFilter(ctx context.Context, filter *URLFilter) error
		DeleteURLFilter(ctx context.Context, chatID int64, domain string) (bool, error)
		ListURLFilters(ctx context.Context, chatID int64) ([]URLFilter, error)
		UpsertMediaLock(ctx context.Context, lock *MediaLock) error
		DeleteMediaLock(ctx context.Context, chatID int64, mediaType MediaType) (bool, error)
		GetMediaLock(ctx context.Context, chatID int64, mediaType MediaType) (*MediaLock, error)
		ListMediaLocks(ctx context.Context, chatID int64) ([]MediaLock, error)
	}

	CaptchaStore interface {
		UpsertPendingCaptcha(ctx context.Context, captcha *PendingCaptcha) error
		GetPendingCaptcha(ctx context.Context, chatID, userID int64) (*PendingCaptcha, error)
		// TakePendingCaptcha removes and returns the row in one step; nil means someone else took it.
		TakePendingCaptcha(ctx context.Context, chatID, userID int64, token string) (*PendingCaptcha, error)
		ListPendingCaptchas(ctx context.Context) ([]PendingCaptcha, error)
		ListExpiredCaptchas(ctx context.Context, now time.Time) ([]PendingCaptcha, error)
	}

	ReportStore interface {
		CreateReport(ctx context.Context, report *Report) (int64, error)
		GetReport(ctx context.Context, id int64) (*Report, error)
		// TransitionReport moves a pending report to a terminal state; false means it was already handled.
		TransitionReport(ctx context.Context, id int64, status ReportState, handledBy int64, at time.Time) (bool, error)
		ListPendingReports(ctx context.Context, chatID int64) ([]Report, error)
	}

	ContentStore interface {
		SaveNote(ctx context.Context, note *Note) error
		GetNote(ctx context.Context, chatID int64, name string) (*Note, error)
		DeleteNote(ctx context.Context, chatID int64, name string) (bool, error)
		ListNotes(ctx context.Context, chatID int64) ([]string, error)
		SetRules(ctx context.Context, rules *Rules) error
		GetRules(ctx context.Context, chatID int64) (*Rules, error)
		DeleteRules(ctx context.Context, chatID int64) (bool, error)
		SaveCommand(ctx context.Context, cmd *CustomCommand) error
		GetCommand(ctx context.Context, chatID int64, command string) (*CustomCommand, error)
		DeleteCommand(ctx context.Context, chatID int64, command string) (bool, error)
		ListCommands(ctx context.Context, chatID int64) ([]string, error)
	}

	KVStore interface {
		GetKV(ctx context.Context, key string) (string, error)
		SetKV(ctx context.Context, key string, value string) error
	}

	// BanlistStore keeps known spammer ids fetched from public lists.
	BanlistStore interface {
		UpsertBanlist(ctx context.Context, userIDs []int64) error
		GetBanlist(ctx context.Context) (map[int64]struct{}, error)
	}

	Client interface {
		SettingsStore
		AdminStore
		WhitelistStore
		RecordStore
		FilterStore
		CaptchaStore
		ReportStore
		ContentStore
		KVStore
		BanlistStore
		Close() error
	}
)
