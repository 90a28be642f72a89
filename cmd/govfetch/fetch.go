package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rochafa10/govfetch"
	"github.com/rochafa10/govfetch/config"
)

func newFetchCmd() *cobra.Command {
	var (
		configPath string
		method     string
		params     []string
		headers    []string
		body       string
		noCache    bool
		retries    int
		showStats  bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <service> <path>",
		Short: "Perform one request through a configured service client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(configPath).Load(cmd.Context())
			if err != nil {
				return err
			}
			logger := cfg.Logging.NewLogger()

			registry, err := cfg.BuildRegistry(govfetch.WithLogger(govfetch.NewSlogLogger(logger)))
			if err != nil {
				return err
			}
			defer func() { _ = registry.Close() }()

			client, ok := registry.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown service %q (configured: %s)", args[0], strings.Join(registry.Names(), ", "))
			}

			req := &govfetch.Request{
				Method: method,
				Path:   args[1],
			}
			if req.Params, err = parseParams(params); err != nil {
				return err
			}
			if req.Headers, err = parseHeaders(headers); err != nil {
				return err
			}
			if req.Body, err = resolveBody(body); err != nil {
				return err
			}
			if noCache {
				req.Cache = govfetch.Bool(false)
			}
			if cmd.Flags().Changed("retries") {
				req.Retries = govfetch.Int(retries)
			}

			resp, err := client.Do(cmd.Context(), req)
			if err != nil {
				return err
			}

			meta := fmt.Sprintf("%d %s in %s", resp.Status, http.StatusText(resp.Status), resp.ResponseTime.Round(time.Millisecond))
			if resp.Cached {
				meta += fmt.Sprintf(" (cached, age %s)", resp.CacheMetadata.Age.Round(time.Second))
			}
			fmt.Fprintln(cmd.ErrOrStderr(), meta)
			fmt.Fprintln(cmd.OutOrStdout(), formatBody(resp.Data))

			if showStats {
				printStats(cmd, client)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "govfetch.yaml", "path to config file")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter (key=value, repeatable)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header (Name: value, repeatable)")
	cmd.Flags().StringVarP(&body, "body", "d", "", "request body (@file reads from a file)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache for this call")
	cmd.Flags().IntVar(&retries, "retries", 0, "override the retry budget for this call")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print cache, breaker, and request log state after the call")

	return cmd
}

func parseParams(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := url.Values{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q (expected key=value)", pair)
		}
		values.Add(k, v)
	}
	return values, nil
}

func parseHeaders(pairs []string) (http.Header, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	header := http.Header{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --header %q (expected Name: value)", pair)
		}
		header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return header, nil
}

func resolveBody(body string) (interface{}, error) {
	if body == "" {
		return nil, nil
	}
	if strings.HasPrefix(body, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(body, "@"))
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		return data, nil
	}
	return body, nil
}

func formatBody(data []byte) string {
	var buf bytes.Buffer
	if json.Indent(&buf, data, "", "  ") == nil {
		return buf.String()
	}
	return string(data)
}

func printStats(cmd *cobra.Command, client *govfetch.Client) {
	out := cmd.ErrOrStderr()

	stats := client.CacheStats()
	fmt.Fprintf(out, "\ncache: size=%d hits=%d misses=%d evictions=%d hitRatio=%.2f\n",
		stats.Size, stats.Hits, stats.Misses, stats.Evictions, stats.HitRatio)

	cb := client.CircuitBreakerState()
	fmt.Fprintf(out, "circuit breaker: state=%s failures=%d blocked=%d\n",
		cb.State, cb.FailureCount, cb.BlockedRequests)

	if rl, ok := client.RateLimiterState(); ok {
		fmt.Fprintf(out, "rate limiter: tokens=%.1f burst=%d limit=%.1f/s\n", rl.Tokens, rl.Burst, rl.Limit)
	}

	for _, entry := range client.RequestLog() {
		fmt.Fprintf(out, "log: %s %s status=%d cached=%t retries=%d in %s\n",
			entry.Method, entry.Endpoint, entry.Status, entry.Cached, entry.Retries, entry.Duration.Round(time.Millisecond))
	}
}
