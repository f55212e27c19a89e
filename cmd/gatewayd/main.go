// Command gatewayd runs the rate-limiting gateway: a request-path HTTP
// server fronted by the rate-limit middleware, and a separate admin API
// for rule and config management.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	logrusadapter "github.com/galemark/ratelimitgw/adapters/logrus"
	zapadapter "github.com/galemark/ratelimitgw/adapters/zap"
	zerologadapter "github.com/galemark/ratelimitgw/adapters/zerolog"
	"github.com/galemark/ratelimitgw/admin"
	nethttpMiddleware "github.com/galemark/ratelimitgw/middleware/nethttp"
	"github.com/galemark/ratelimitgw/ratelimit"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	logger := buildLogger(cfg.logBackend)

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("gatewayd: building store: %v", err)
	}
	defer closeStore()

	pipeline, err := ratelimit.NewPipeline(
		ratelimit.WithStore(store),
		ratelimit.WithLogger(logger),
		ratelimit.WithMatchCacheSize(cfg.matchCacheSize),
		ratelimit.WithEventStreamBufferSize(cfg.streamBufSize),
	)
	if err != nil {
		log.Fatalf("gatewayd: building pipeline: %v", err)
	}
	defer pipeline.Close()

	if cfg.bootstrapRulesPath != "" {
		rules, err := loadBootstrapRules(cfg.bootstrapRulesPath)
		if err != nil {
			log.Fatalf("gatewayd: loading bootstrap rules: %v", err)
		}
		for _, rule := range rules {
			if err := store.PutRule(context.Background(), rule); err != nil {
				log.Fatalf("gatewayd: persisting bootstrap rule %q: %v", rule.ID, err)
			}
		}
		pipeline.RuleCache().Load(rules)
		log.Printf("gatewayd: loaded %d bootstrap rules from %s", len(rules), cfg.bootstrapRulesPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gatewayMux := http.NewServeMux()
	gatewayMux.Handle("/", nethttpMiddleware.Middleware(pipeline)(http.HandlerFunc(proxyPlaceholder)))
	gatewayServer := &http.Server{Addr: cfg.gatewayAddr, Handler: gatewayMux}

	adminHost, adminPort, err := splitAddr(cfg.adminAddr)
	if err != nil {
		log.Fatalf("gatewayd: invalid -admin_addr %q: %v", cfg.adminAddr, err)
	}
	adminServer := admin.NewServerWithAddress(adminHost, adminPort, cfg.adminToken, pipeline, cfg.apiMaxBodyBytes)

	var wg sync.WaitGroup
	wg.Add(2)
	go runServer(&wg, "gateway", gatewayServer.Addr, func() error { return gatewayServer.ListenAndServe() })
	go func() {
		defer wg.Done()
		log.Printf("gatewayd: admin API listening on %s", cfg.adminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("gatewayd: admin server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("gatewayd: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = gatewayServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)

	wg.Wait()
	log.Println("gatewayd: shutdown complete")
}

func runServer(wg *sync.WaitGroup, name, addr string, run func() error) {
	defer wg.Done()
	log.Printf("gatewayd: %s listening on %s", name, addr)
	if err := run(); err != nil && err != http.ErrServerClosed {
		log.Printf("gatewayd: %s server error: %v", name, err)
	}
}

// proxyPlaceholder stands in for whatever upstream handler or reverse
// proxy sits behind the rate-limit middleware. gatewayd itself is a
// rate-limiting gateway layer, not a full reverse proxy.
func proxyPlaceholder(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func buildStore(cfg *config) (ratelimit.Store, func(), error) {
	switch cfg.storeBackend {
	case "memory":
		store := ratelimit.NewMemoryStore(5 * time.Minute)
		return store, func() { _ = store.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		store := ratelimit.NewRedisStore(client)
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.storeBackend)
	}
}

func buildLogger(backend string) ratelimit.Logger {
	switch backend {
	case "zap":
		l, err := zap.NewProduction()
		if err != nil {
			log.Fatalf("gatewayd: building zap logger: %v", err)
		}
		return zapadapter.New(l)
	case "logrus":
		return logrusadapter.New(logrus.StandardLogger())
	case "zerolog":
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		return zerologadapter.New(&l)
	default:
		log.Fatalf("gatewayd: unknown log backend %q", backend)
		return nil
	}
}

func splitAddr(addr string) (host string, port int, err error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", p, err)
	}
	return h, port, nil
}
