package standingssvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const standingsPage = `
<html><body>
<table class="classement">
<tr><th>#</th><th>Equipe</th><th>J</th><th>Pts</th></tr>
<tr><td>1</td><td><a href="/t/1">AS Vita Club</a></td><td>10</td><td>25</td></tr>
<tr><td>2</td><td>DC   Motema Pembe</td><td>10</td><td>22</td></tr>
<tr><td>3</td><td>TP Mazembe</td><td>9</td><td>bad</td></tr>
</table>
</body></html>`

func Test_parseStandings(t *testing.T) {
	rows := parseStandings(standingsPage)

	want := []Row{
		{Rank: 1, Team: "AS Vita Club", Played: 10, Points: 25},
		{Rank: 2, Team: "DC   Motema Pembe", Played: 10, Points: 22},
		{Rank: 3, Team: "TP Mazembe", Played: 9, Points: 0}, // unparseable points default to 0
	}
	assert.Equal(t, want, rows)

	assert.Empty(t, parseStandings("<html><body>nothing here</body></html>"))
}

func Test_service_Get_cache(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(standingsPage))
	}))
	defer srv.Close()

	svc := NewService(srv.URL)
	now := time.Now()
	svc.nowFunc = func() time.Time { return now }

	ctx := context.Background()
	rows, err := svc.Get(ctx)
	assert.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, 1, hits)

	// within the TTL the cache answers
	_, err = svc.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, hits)

	// past the TTL the page is fetched again
	now = now.Add(cacheTTL + time.Minute)
	_, err = svc.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func Test_service_Get_staleOnError(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(standingsPage))
	}))
	defer srv.Close()

	svc := NewService(srv.URL)
	now := time.Now()
	svc.nowFunc = func() time.Time { return now }

	ctx := context.Background()
	rows, err := svc.Get(ctx)
	assert.NoError(t, err)
	assert.Len(t, rows, 3)

	// upstream breaks after the TTL; the stale rows still come back
	fail = true
	now = now.Add(cacheTTL + time.Minute)
	rows, err = svc.Get(ctx)
	assert.NoError(t, err)
	assert.Len(t, rows, 3)

	// a cold service surfaces the error
	cold := NewService(srv.URL)
	_, err = cold.Get(ctx)
	assert.Error(t, err)
}
