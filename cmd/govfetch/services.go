package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rochafa10/govfetch/config"
)

func newServicesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "services",
		Short: "List configured services and their effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(configPath).Load(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(cfg.Services))
			for name := range cfg.Services {
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No services configured.")
				return nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%-16s %-42s %8s %8s %-14s %10s\n",
				"SERVICE", "BASE URL", "TIMEOUT", "RETRIES", "CACHE", "RATE")
			b.WriteString(strings.Repeat("-", 102) + "\n")
			for _, name := range names {
				svc, _ := cfg.Service(name)
				fmt.Fprintf(&b, "%-16s %-42s %7ds %8s %-14s %10s\n",
					name, svc.BaseURL, svc.TimeoutSeconds,
					formatRetries(svc.Retries), formatCache(svc.Cache), formatRate(svc.RateLimit))
			}
			fmt.Fprint(cmd.OutOrStdout(), b.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "govfetch.yaml", "path to config file")
	return cmd
}

func formatRetries(retries *int) string {
	if retries == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *retries)
}

func formatCache(cache config.CacheConfig) string {
	if cache.Enabled != nil && !*cache.Enabled {
		return "off"
	}
	return fmt.Sprintf("%s/%ds", cache.Storage, cache.TTLSeconds)
}

func formatRate(limit config.RateLimitConfig) string {
	if limit.RequestsPerSecond <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f/s", limit.RequestsPerSecond)
}
