/*
Command bulkctl triggers a bulk catalog operation and follows its progress.

Usage:

	$ bulkctl -op refresh -entity movie -ids 1,2,3,4,5,6,7
	$ bulkctl -op status -entity series -filter-status draft -limit 50 -set-status published
	$ bulkctl -op import -entity movie -feed https://letterboxd.com/someone/rss/
	$ bulkctl -follow refresh_movie_1700000000_1a2b3c4d

Ctrl-C stops following; the job keeps running on the server.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/poller"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	var (
		server       = flag.String("server", envOr("BULK_API_URL", "http://localhost:8080"), "bulk API base URL")
		token        = flag.String("token", os.Getenv("BULK_API_TOKEN"), "admin bearer token")
		op           = flag.String("op", "", "operation: refresh, import or status")
		entity       = flag.String("entity", "movie", "entity type: movie or series")
		ids          = flag.String("ids", "", "comma separated ids")
		filterStatus = flag.String("filter-status", "", "select titles with this publication status")
		limit        = flag.Int("limit", 0, "maximum number of titles selected by the filter")
		feedURL      = flag.String("feed", "", "feed to import TMDB ids from (import only)")
		setStatus    = flag.String("set-status", "", "publication status to apply (status, import)")
		follow       = flag.String("follow", "", "follow an existing progress key instead of triggering")
		interval     = flag.Duration("interval", poller.DefaultInterval, "poll interval")
		maxDuration  = flag.Duration("max-duration", time.Hour, "give up following after this long (0 disables)")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	client := poller.NewClient(poller.ClientConfig{BaseURL: *server, Token: *token})
	ctx := context.Background()

	key := types.ProgressKey(*follow)
	if key == "" {
		req, operation, err := buildRequest(*op, *entity, *ids, *filterStatus, *limit, *feedURL, *setStatus)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			flag.Usage()
			os.Exit(2)
		}

		result, err := client.Trigger(ctx, operation, *req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trigger failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Accepted %d items\n", result.TotalItems)
		key = result.ProgressKey
	} else if !key.Valid() {
		fmt.Fprintf(os.Stderr, "malformed progress key %q\n", key)
		os.Exit(2)
	}

	p := poller.New(client, poller.NewTerminalRenderer(os.Stdout), poller.Options{
		Interval:    *interval,
		MaxDuration: *maxDuration,
	}, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		p.Cancel()
	}()

	snap, err := p.Run(ctx, key)
	switch {
	case err == nil:
		if snap.Failed > 0 {
			os.Exit(3)
		}
	case errors.Is(err, poller.ErrCancelled):
		os.Exit(130)
	default:
		os.Exit(1)
	}
}

func buildRequest(op, entity, ids, filterStatus string, limit int, feedURL, setStatus string) (*poller.TriggerRequest, types.Operation, error) {
	operation, err := types.ParseOperation(op)
	if err != nil {
		return nil, "", err
	}
	et, err := types.ParseEntityType(entity)
	if err != nil {
		return nil, "", err
	}

	req := &poller.TriggerRequest{
		EntityType: et,
		Params:     types.JobParams{Status: setStatus},
	}
	if ids != "" {
		req.IDs, err = parseIDs(ids)
		if err != nil {
			return nil, "", err
		}
		return req, operation, nil
	}
	if filterStatus == "" && limit == 0 && feedURL == "" {
		return nil, "", errors.New("either -ids or a filter (-filter-status, -limit, -feed) is required")
	}
	req.Filter = &poller.Filter{Status: filterStatus, Limit: limit, FeedURL: feedURL}
	return req, operation, nil
}

func parseIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
