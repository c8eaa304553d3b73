package moderation

import (
	"context"
	"regexp"

	"github.com/iamwavecut/ngguard/internal/db"
)

const FilterSpam = "spam"

var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(free|win|winner|congratulations).*(money|cash|prize|reward)`),
	regexp.MustCompile(`(?i)(click|visit|check).*(link|url|website)`),
	regexp.MustCompile(`(?i)(telegram|whatsapp|discord).*(group|channel|server)`),
	regexp.MustCompile(`(?i)(crypto|bitcoin|trading|investment).*(profit|earn|money)`),
	regexp.MustCompile(`(?i)(dating|meet|girls|boys).*(app|site|website)`),
}

type settingsGetter interface {
	GetSettings(ctx context.Context, chatID int64) (*db.Settings, error)
}

// SpamFilter deletes messages matching fixed spam phrases when anti-spam is on.
type SpamFilter struct {
	settings settingsGetter
}

func NewSpamFilter(settings settingsGetter) *SpamFilter {
	return &SpamFilter{settings: settings}
}

func (f *SpamFilter) Name() string { return FilterSpam }

func (f *SpamFilter) Check(ctx context.Context, p Payload) (*Verdict, error) {
	if p.Text == "" {
		return nil, nil
	}
	settings, err := f.settings.GetSettings(ctx, p.ChatID)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.AntispamEnabled {
		return nil, nil
	}
	for _, re := range spamPatterns {
		if re.MatchString(p.Text) {
			return &Verdict{Filter: FilterSpam, Rule: re.String(), Action: db.ActionDelete}, nil
		}
	}
	return nil, nil
}
