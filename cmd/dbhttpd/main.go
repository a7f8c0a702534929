// Package main implements the HTTP inspection surface for the storage
// engine: a thin net/http front-end routed with chi, sharing a single
// *executor.Executor handle across every request.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/cabewaldrop/pagestore/internal/catalog"
	"github.com/cabewaldrop/pagestore/internal/sql/executor"
	"github.com/cabewaldrop/pagestore/internal/storage"
	"github.com/cabewaldrop/pagestore/internal/web"
)

func main() {
	dbPath := flag.String("db", "store.db1", "Path to database file")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cacheCapacity := flag.Int("cache", storage.DefaultCacheCapacity, "Buffer cache capacity, in pages")
	pageCeiling := flag.Int("page-ceiling", storage.DefaultPageCeiling, "Page-size ceiling, in bytes")
	verbose := flag.Bool("verbose", false, "Log at debug level instead of info")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ps, err := storage.Open(*dbPath,
		storage.WithCacheCapacity(*cacheCapacity),
		storage.WithPageCeiling(*pageCeiling),
		storage.WithLogger(log),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer ps.Close()

	cat, err := catalog.Open(ps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to rehydrate catalog")
	}

	exec := executor.New(ps, cat)

	port, err := addrPort(*addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("invalid listen address")
	}

	srv := web.NewServer(port, exec, log)
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

// addrPort extracts the port component from a ":PORT"-style listen
// address, since web.NewServer takes a bare port today.
func addrPort(addr string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(addr, ":%d", &port); err != nil {
		return 0, fmt.Errorf("dbhttpd: address must be of the form \":PORT\": %w", err)
	}
	return port, nil
}
