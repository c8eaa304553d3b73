package moderation

import (
	"bufio"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

func fetchIDs(ctx context.Context, client *http.Client, urls []string) (map[int64]struct{}, error) {
	results := make(map[int64]struct{})
	for _, url := range urls {
		ids, err := fetchIDsWithRetry(ctx, client, url)
		if err != nil {
			return nil, err
		}
		for userID := range ids {
			results[userID] = struct{}{}
		}
	}
	return results, nil
}

func fetchIDsWithRetry(ctx context.Context, client *http.Client, url string) (map[int64]struct{}, error) {
	var lastErr error
	for attempt := range banlistMaxRetries {
		ids, err := fetchIDList(ctx, client, url)
		if err == nil {
			return ids, nil
		}
		lastErr = err
		if attempt == banlistMaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * banlistRetryStep):
		}
	}
	return nil, errors.WithMessagef(lastErr, "fetch %s failed after retries", url)
}

// fetchIDList reads one user id per line; blank lines are skipped.
func fetchIDList(ctx context.Context, client *http.Client, url string) (map[int64]struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WithMessage(err, "create request")
	}
	req.Header.Set("accept", "text/plain")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.WithMessage(err, "send request")
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Errorf("unexpected status code %d", resp.StatusCode)
	}

	results := make(map[int64]struct{})
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		userID, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, errors.WithMessagef(err, "parse user id %q", line)
		}
		results[userID] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithMessage(err, "scan response body")
	}
	return results, nil
}
