package moderation

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/idna"

	"github.com/iamwavecut/ngguard/internal/db"
)

const FilterURLs = "urls"

var (
	urlPattern = regexp.MustCompile(`https?://[^\s]+`)

	shorteners = []string{
		"bit.ly", "tinyurl.com", "short.link", "t.co", "goo.gl",
		"ow.ly", "buff.ly", "is.gd", "tiny.cc",
	}
)

type urlRuleStore interface {
	ListURLFilters(ctx context.Context, chatID int64) ([]db.URLFilter, error)
}

// URLFilter denies link shorteners and blacklisted domains, with whitelist rules taking precedence.
type URLFilter struct {
	store urlRuleStore
	cache *expirable.LRU[int64, []db.URLFilter]
}

func NewURLFilter(store urlRuleStore) *URLFilter {
	return &URLFilter{
		store: store,
		cache: expirable.NewLRU[int64, []db.URLFilter](compiledCacheSize, nil, compiledCacheTTL),
	}
}

func (f *URLFilter) Name() string { return FilterURLs }

func (f *URLFilter) Invalidate(chatID int64) {
	f.cache.Remove(chatID)
}

func (f *URLFilter) Check(ctx context.Context, p Payload) (*Verdict, error) {
	hosts := ExtractHosts(p.Text)
	if len(hosts) == 0 {
		return nil, nil
	}
	rules, ok := f.cache.Get(p.ChatID)
	if !ok {
		var err error
		rules, err = f.store.ListURLFilters(ctx, p.ChatID)
		if err != nil {
			return nil, err
		}
		f.cache.Add(p.ChatID, rules)
	}

	for _, host := range hosts {
		if isShortener(host) {
			return &Verdict{Filter: FilterURLs, Rule: host, Action: db.ActionDelete}, nil
		}
		if rule := matchURLRule(rules, host, true); rule != nil {
			continue
		}
		if rule := matchURLRule(rules, host, false); rule != nil {
			return &Verdict{Filter: FilterURLs, Rule: rule.Domain, Action: rule.Action}, nil
		}
	}
	return nil, nil
}

// ContainsURL reports whether the text carries at least one http(s) link.
func ContainsURL(text string) bool {
	return urlPattern.MatchString(text)
}

// ExtractHosts returns normalized hosts of every http(s) link in the text.
func ExtractHosts(text string) []string {
	var hosts []string
	for _, raw := range urlPattern.FindAllString(text, -1) {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if host := NormalizeDomain(u.Hostname()); host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

// NormalizeDomain lowercases, punycode-encodes and strips a leading "www.".
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimSuffix(domain, ".")
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
		domain = ascii
	}
	return strings.TrimPrefix(domain, "www.")
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func isShortener(host string) bool {
	for _, s := range shorteners {
		if hostMatches(host, s) {
			return true
		}
	}
	return false
}

func matchURLRule(rules []db.URLFilter, host string, whitelist bool) *db.URLFilter {
	for i := range rules {
		if rules[i].IsWhitelist == whitelist && hostMatches(host, rules[i].Domain) {
			return &rules[i]
		}
	}
	return nil
}
