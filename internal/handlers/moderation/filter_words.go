package moderation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/cloudflare/ahocorasick"
	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/utils/text"
)

const (
	FilterWords = "words"

	compiledCacheSize = 1024
	compiledCacheTTL  = 10 * time.Minute
)

type wordRuleStore interface {
	ListWordFilters(ctx context.Context, chatID int64) ([]db.WordFilter, error)
}

type compiledWordRule struct {
	rule    db.WordFilter
	literal int // index into the matcher dictionary, -1 for regex rules
	re      *regexp.Regexp
}

type compiledWords struct {
	rules   []compiledWordRule
	matcher *ahocorasick.Matcher
}

// WordFilter matches literal words with an Aho-Corasick automaton and
// patterns with case-insensitive regular expressions. Literal matching sees
// text with Latin lookalikes folded into Cyrillic.
type WordFilter struct {
	store  wordRuleStore
	cache  *expirable.LRU[int64, *compiledWords]
	logger *log.Entry
}

func NewWordFilter(store wordRuleStore) *WordFilter {
	return &WordFilter{
		store:  store,
		cache:  expirable.NewLRU[int64, *compiledWords](compiledCacheSize, nil, compiledCacheTTL),
		logger: log.WithField("object", "WordFilter"),
	}
}

func (f *WordFilter) Name() string { return FilterWords }

// Invalidate drops the compiled rules of a chat after they change.
func (f *WordFilter) Invalidate(chatID int64) {
	f.cache.Remove(chatID)
}

func (f *WordFilter) Check(ctx context.Context, p Payload) (*Verdict, error) {
	if p.Text == "" {
		return nil, nil
	}
	compiled, err := f.compiled(ctx, p.ChatID)
	if err != nil {
		return nil, err
	}
	if len(compiled.rules) == 0 {
		return nil, nil
	}

	folded := text.FoldLookalikes(p.Text)
	hits := map[int]struct{}{}
	if compiled.matcher != nil {
		for _, idx := range compiled.matcher.MatchThreadSafe([]byte(folded)) {
			hits[idx] = struct{}{}
		}
	}

	for _, r := range compiled.rules {
		matched := false
		if r.re != nil {
			matched = r.re.MatchString(p.Text)
		} else if r.literal >= 0 {
			_, matched = hits[r.literal]
		}
		if matched {
			return &Verdict{
				Filter: FilterWords,
				Rule:   r.rule.Pattern,
				Action: r.rule.Action,
			}, nil
		}
	}
	return nil, nil
}

func (f *WordFilter) compiled(ctx context.Context, chatID int64) (*compiledWords, error) {
	if c, ok := f.cache.Get(chatID); ok {
		return c, nil
	}
	rules, err := f.store.ListWordFilters(ctx, chatID)
	if err != nil {
		return nil, err
	}

	c := &compiledWords{}
	var dict []string
	for _, rule := range rules {
		entry := compiledWordRule{rule: rule, literal: -1}
		if rule.IsRegex {
			re, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				f.logger.WithFields(log.Fields{
					"chat":    chatID,
					"pattern": rule.Pattern,
					"error":   err.Error(),
				}).Warn("skipping invalid regex filter")
				continue
			}
			entry.re = re
		} else {
			word := text.FoldLookalikes(strings.TrimSpace(rule.Pattern))
			if word == "" {
				continue
			}
			entry.literal = len(dict)
			dict = append(dict, word)
		}
		c.rules = append(c.rules, entry)
	}
	if len(dict) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(dict)
	}
	f.cache.Add(chatID, c)
	return c, nil
}
