package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/galemark/ratelimitgw/ratelimit"
)

type config struct {
	gatewayAddr string
	adminAddr   string
	adminToken  string

	storeBackend string
	redisAddr    string

	logBackend string

	bootstrapRulesPath string

	apiMaxBodyBytes int64
	matchCacheSize  int
	streamBufSize   int
}

func newFlagSet(name string, output io.Writer) *flag.FlagSet {
	if output == nil {
		output = io.Discard
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	return fs
}

func parseConfig(args []string, output io.Writer) (*config, error) {
	fs := newFlagSet("gatewayd", output)

	cfg := &config{}
	fs.StringVar(&cfg.gatewayAddr, "gateway_addr", ":8080", "address the proxied/rate-limited request path listens on")
	fs.StringVar(&cfg.adminAddr, "admin_addr", ":9090", "address the admin API listens on")
	fs.StringVar(&cfg.adminToken, "admin_token", "", "bearer token required on admin API requests; empty disables auth")
	fs.StringVar(&cfg.storeBackend, "store", "memory", "counter/rule store backend: memory or redis")
	fs.StringVar(&cfg.redisAddr, "redis_addr", "localhost:6379", "redis address, used when -store=redis")
	fs.StringVar(&cfg.logBackend, "log", "zerolog", "logger backend: zerolog, zap, or logrus")
	fs.StringVar(&cfg.bootstrapRulesPath, "rules", "", "path to a YAML file of bootstrap rules, loaded at startup")
	fs.Int64Var(&cfg.apiMaxBodyBytes, "api_max_body_bytes", 1<<20, "max admin API request body size")
	fs.IntVar(&cfg.matchCacheSize, "match_cache_size", 4096, "rule-match memoization cache size")
	fs.IntVar(&cfg.streamBufSize, "stream_buffer_size", ratelimit.DefaultStreamBufferSize, "decision event stream ring buffer size")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bootstrapRuleFile is the YAML document shape accepted by -rules. It
// mirrors ratelimit.Rule but with duration fields expressed as
// human-readable strings (e.g. "1m", "500ms") rather than nanosecond
// counts, since those are what an operator actually writes by hand.
type bootstrapRuleFile struct {
	Rules []bootstrapRule `yaml:"rules"`
}

type bootstrapRule struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Pattern  string `yaml:"pattern"`
	Priority int    `yaml:"priority"`
	Active   bool   `yaml:"active"`

	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`

	Identifiers []bootstrapIdentifier `yaml:"identifiers"`

	Queue          *bootstrapQueue `yaml:"queue"`
	BodyLimitBytes int64           `yaml:"body_limit_bytes"`
}

type bootstrapIdentifier struct {
	Kind       string   `yaml:"kind"`
	Mode       string   `yaml:"mode"`
	HeaderName string   `yaml:"header_name"`
	CookieName string   `yaml:"cookie_name"`
	BodyField  string   `yaml:"body_field"`
	BodyFormat string   `yaml:"body_format"`
	Claims     []string `yaml:"claims"`
	Separator  string   `yaml:"separator"`
}

type bootstrapQueue struct {
	Enabled      bool   `yaml:"enabled"`
	MaxDepth     int    `yaml:"max_depth"`
	DelayPerSlot string `yaml:"delay_per_slot"`
	MaxWait      string `yaml:"max_wait"`
}

// loadBootstrapRules reads and parses a YAML rules file into the core
// Rule type, validating each one.
func loadBootstrapRules(path string) ([]*ratelimit.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var file bootstrapRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules YAML: %w", err)
	}

	now := time.Now()
	rules := make([]*ratelimit.Rule, 0, len(file.Rules))
	for _, br := range file.Rules {
		window, err := time.ParseDuration(br.Window)
		if err != nil {
			return nil, fmt.Errorf("rule %q: invalid window %q: %w", br.ID, br.Window, err)
		}

		rule := &ratelimit.Rule{
			ID:             br.ID,
			Name:           br.Name,
			Pattern:        br.Pattern,
			Priority:       br.Priority,
			Active:         br.Active,
			Limit:          br.Limit,
			Window:         window,
			BodyLimitBytes: br.BodyLimitBytes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		for _, bi := range br.Identifiers {
			rule.Identifiers = append(rule.Identifiers, ratelimit.IdentifierSource{
				Kind:       ratelimit.IdentifierKind(bi.Kind),
				Mode:       ratelimit.IdentifierMode(bi.Mode),
				HeaderName: bi.HeaderName,
				CookieName: bi.CookieName,
				BodyField:  bi.BodyField,
				BodyFormat: ratelimit.BodyFormat(bi.BodyFormat),
				Claims:     bi.Claims,
				Separator:  bi.Separator,
			})
		}

		if br.Queue != nil {
			delay, err := parseOptionalDuration(br.Queue.DelayPerSlot)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid queue.delay_per_slot: %w", br.ID, err)
			}
			maxWait, err := parseOptionalDuration(br.Queue.MaxWait)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid queue.max_wait: %w", br.ID, err)
			}
			rule.Queue = ratelimit.QueueConfig{
				Enabled:      br.Queue.Enabled,
				MaxDepth:     br.Queue.MaxDepth,
				DelayPerSlot: delay,
				MaxWait:      maxWait,
			}
		}

		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %q: %w", br.ID, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
