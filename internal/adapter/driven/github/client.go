// Package github implements the push history and webhook ports using the
// go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PushHistorySource = (*Client)(nil)

// maxHistoryPages caps how many pages of commit history are read to order
// pushed commits. Older commits sort after the ones found.
const maxHistoryPages = 10

// Client reads repository push history from the GitHub REST API.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// FetchPushEvents returns the push events recorded for owner/repo, oldest
// first. Commits within each event are ordered as in the repository history
// and given timestamps one second apart starting at the push time, since the
// events API does not carry commit times.
func (c *Client) FetchPushEvents(ctx context.Context, owner, repo string) ([]model.PushEvent, error) {
	fullName := owner + "/" + repo

	repository, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("getting repository %s: %w", fullName, err)
	}
	logRateLimit(resp, fullName, 0, 1)
	defaultBranch := repository.GetDefaultBranch()

	rawEvents, err := c.listPushEvents(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	if len(rawEvents) == 0 {
		return []model.PushEvent{}, nil
	}

	order, err := c.commitOrder(ctx, owner, repo, defaultBranch)
	if err != nil {
		return nil, err
	}

	events := make([]model.PushEvent, 0, len(rawEvents))
	for _, raw := range rawEvents {
		event, err := c.mapPushEvent(ctx, raw, owner, repo, defaultBranch, order)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	// The events API lists newest first.
	slices.SortStableFunc(events, func(a, b model.PushEvent) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return events, nil
}

type rawPushEvent struct {
	createdAt time.Time
	payload   *gh.PushEvent
}

func (c *Client) listPushEvents(ctx context.Context, owner, repo string) ([]rawPushEvent, error) {
	fullName := owner + "/" + repo
	opts := &gh.ListOptions{PerPage: 100}

	var pushes []rawPushEvent

	for {
		events, resp, err := c.gh.Activity.ListRepositoryEvents(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing events for %s (page %d): %w", fullName, opts.Page, err)
		}

		logRateLimit(resp, fullName+" events", opts.Page, len(events))

		for _, e := range events {
			if e.GetType() != "PushEvent" {
				continue
			}
			payload, err := e.ParsePayload()
			if err != nil {
				return nil, fmt.Errorf("parsing push event %s for %s: %w", e.GetID(), fullName, err)
			}
			push, ok := payload.(*gh.PushEvent)
			if !ok {
				continue
			}
			pushes = append(pushes, rawPushEvent{createdAt: e.GetCreatedAt().Time, payload: push})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return pushes, nil
}

// commitOrder maps each SHA on the branch to its position in history,
// oldest first.
func (c *Client) commitOrder(ctx context.Context, owner, repo, branch string) (map[string]int, error) {
	fullName := owner + "/" + repo
	opts := &gh.CommitsListOptions{
		SHA:         branch,
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var newestFirst []string

	for page := 0; page < maxHistoryPages; page++ {
		commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s (page %d): %w", fullName, opts.Page, err)
		}

		logRateLimit(resp, fullName+" commits", opts.Page, len(commits))

		for _, rc := range commits {
			newestFirst = append(newestFirst, rc.GetSHA())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	order := make(map[string]int, len(newestFirst))
	for i, sha := range newestFirst {
		order[sha] = len(newestFirst) - 1 - i
	}
	return order, nil
}

func (c *Client) mapPushEvent(
	ctx context.Context,
	raw rawPushEvent,
	owner, repo, defaultBranch string,
	order map[string]int,
) (model.PushEvent, error) {
	push := raw.payload
	event := model.PushEvent{
		Ref:           push.GetRef(),
		DefaultBranch: defaultBranch,
		RepoOwner:     owner,
		RepoName:      repo,
		After:         push.GetHead(),
		CreatedAt:     raw.createdAt.UTC(),
	}

	commits := make([]model.PushedCommit, 0, len(push.Commits))
	for _, hc := range push.Commits {
		sha := hc.GetID()
		if sha == "" {
			sha = hc.GetSHA()
		}
		commits = append(commits, model.PushedCommit{Sha: sha, Message: hc.GetMessage()})
	}

	// Newer event payloads omit the commit list; recover it from the compare API.
	if len(commits) == 0 && push.GetBefore() != "" && push.GetHead() != "" {
		compared, err := c.compare(ctx, owner, repo, push.GetBefore(), push.GetHead())
		if err != nil {
			return model.PushEvent{}, err
		}
		commits = compared
	}

	slices.SortStableFunc(commits, func(a, b model.PushedCommit) int {
		return rank(order, a.Sha) - rank(order, b.Sha)
	})
	for i := range commits {
		commits[i].Timestamp = event.CreatedAt.Add(time.Duration(i) * time.Second)
	}
	event.Commits = commits

	return event, nil
}

func rank(order map[string]int, sha string) int {
	if r, ok := order[sha]; ok {
		return r
	}
	return len(order)
}

func (c *Client) compare(ctx context.Context, owner, repo, base, head string) ([]model.PushedCommit, error) {
	fullName := owner + "/" + repo

	comparison, resp, err := c.gh.Repositories.CompareCommits(ctx, owner, repo, base, head, &gh.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("comparing %s...%s in %s: %w", base, head, fullName, err)
	}
	logRateLimit(resp, fullName+" compare", 0, len(comparison.Commits))

	commits := make([]model.PushedCommit, 0, len(comparison.Commits))
	for _, rc := range comparison.Commits {
		commits = append(commits, model.PushedCommit{
			Sha:     rc.GetSHA(),
			Message: rc.GetCommit().GetMessage(),
		})
	}
	return commits, nil
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
