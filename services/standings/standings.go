// Package standingssvc fetches league standings pages from the federation
// site and caches the scraped result in memory for an hour.
package standingssvc

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const cacheTTL = time.Hour

type Row struct {
	Rank   int    `json:"rank"`
	Team   string `json:"team"`
	Played int    `json:"played"`
	Points int    `json:"points"`
}

type cacheEntry struct {
	rows      []Row
	fetchedAt time.Time
}

type Service struct {
	url    string
	client *http.Client

	mu    sync.RWMutex
	cache map[string]cacheEntry

	nowFunc func() time.Time
}

func NewService(url string) *Service {
	return &Service{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   make(map[string]cacheEntry),
		nowFunc: time.Now,
	}
}

// Get returns the standings, served from cache when fetched within the TTL.
func (svc *Service) Get(ctx context.Context) ([]Row, error) {
	svc.mu.RLock()
	entry, ok := svc.cache[svc.url]
	svc.mu.RUnlock()
	if ok && svc.nowFunc().Sub(entry.fetchedAt) < cacheTTL {
		return entry.rows, nil
	}

	rows, err := svc.fetch(ctx)
	if err != nil {
		// serve a stale entry over nothing
		if ok {
			return entry.rows, nil
		}
		return nil, err
	}

	svc.mu.Lock()
	svc.cache[svc.url] = cacheEntry{rows: rows, fetchedAt: svc.nowFunc()}
	svc.mu.Unlock()
	return rows, nil
}

func (svc *Service) fetch(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building standings request")
	}
	res, err := svc.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching standings")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching standings: status %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading standings body")
	}
	return parseStandings(string(body)), nil
}

var (
	rowRe = regexp.MustCompile(`(?s)<tr[^>]*>(.*?)</tr>`)
	colRe = regexp.MustCompile(`(?s)<td[^>]*>(.*?)</td>`)
	tagRe = regexp.MustCompile(`<[^>]*>`)
)

// parseStandings pulls (rank, team, played, points) out of the first table
// whose rows carry at least 4 cells. The federation page has no stable ids,
// so this stays deliberately loose.
func parseStandings(html string) []Row {
	var rows []Row
	for _, m := range rowRe.FindAllStringSubmatch(html, -1) {
		cols := colRe.FindAllStringSubmatch(m[1], -1)
		if len(cols) < 4 {
			continue
		}
		rank, err := strconv.Atoi(cleanCell(cols[0][1]))
		if err != nil {
			continue
		}
		played, _ := strconv.Atoi(cleanCell(cols[2][1]))
		points, _ := strconv.Atoi(cleanCell(cols[len(cols)-1][1]))
		rows = append(rows, Row{
			Rank:   rank,
			Team:   cleanCell(cols[1][1]),
			Played: played,
			Points: points,
		})
	}
	return rows
}

func cleanCell(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}
