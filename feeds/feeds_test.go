package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listFeed = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0" xmlns:letterboxd="https://letterboxd.com" xmlns:tmdb="https://themoviedb.org">
<channel>
	<title>Favourites</title>
	<item>
		<title>Fight Club, 1999</title>
		<link>https://letterboxd.com/film/fight-club/</link>
		<tmdb:movieId>550</tmdb:movieId>
	</item>
	<item>
		<title>Pulp Fiction, 1994</title>
		<link>https://letterboxd.com/film/pulp-fiction/</link>
		<tmdb:movieId>680</tmdb:movieId>
	</item>
	<item>
		<title>Fight Club again</title>
		<link>https://letterboxd.com/film/fight-club/</link>
		<tmdb:movieId>550</tmdb:movieId>
	</item>
	<item>
		<title>The Matrix</title>
		<link>https://www.themoviedb.org/movie/603-the-matrix</link>
	</item>
	<item>
		<title>Breaking Bad</title>
		<link>https://www.themoviedb.org/tv/1396-breaking-bad</link>
	</item>
</channel>
</rss>`

func TestExtractTMDBIDs(t *testing.T) {
	feed, err := gofeed.NewParser().ParseString(listFeed)
	require.NoError(t, err)

	assert.Equal(t, []int64{550, 680, 603}, ExtractTMDBIDs(feed, types.EntityMovie))
	assert.Equal(t, []int64{1396}, ExtractTMDBIDs(feed, types.EntitySeries))
}

func TestResolveTMDBIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(listFeed))
	}))
	defer server.Close()

	fetcher := NewFetcher(5 * time.Second)
	ids, err := fetcher.ResolveTMDBIDs(context.Background(), server.URL, types.EntityMovie, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{550, 680}, ids)
}

func TestResolveTMDBIDsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewFetcher(time.Second).ResolveTMDBIDs(context.Background(), server.URL, types.EntityMovie, 0)
	assert.Error(t, err)
}

func TestValidateFeedURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid https", "https://letterboxd.com/user/list/favs/rss/", "https://letterboxd.com/user/list/favs/rss/", false},
		{"scheme added", "letterboxd.com/user/rss/", "https://letterboxd.com/user/rss/", false},
		{"empty", "", "", true},
		{"ftp scheme", "ftp://example.com/feed", "", true},
		{"localhost", "http://localhost:8080/rss", "", true},
		{"private ip", "http://192.168.1.10/rss", "", true},
		{"loopback ip", "http://127.0.0.1/rss", "", true},
		{"internal domain", "https://feeds.internal/rss", "", true},
		{"script extension", "https://example.com/feed.php", "", true},
		{"script injection", "https://example.com/rss?q=<script>alert(1)</script>", "", true},
		{"too long", "https://example.com/" + string(make([]byte, 2100)), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateFeedURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
