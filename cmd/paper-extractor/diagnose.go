// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-extractor/internal/report"
)

const checkTimeout = 10 * time.Second

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check connectivity to the remote services and the store",
	Long: `Diagnose sends one request to each remote service (article API,
identifier converter, entity annotator) and pings the store. Any HTTP
response counts as reachable; transport errors and timeouts do not.`,
	Args: cobra.NoArgs,
	RunE: runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := &http.Client{Timeout: checkTimeout}

	checks := []report.Check{
		checkURL(ctx, client, "article api", cfg.Fetch.BaseURL),
	}
	if cfg.Fetch.IDConverterURL != "" {
		checks = append(checks, checkURL(ctx, client, "id converter", cfg.Fetch.IDConverterURL))
	}
	if cfg.Annotator.Enabled {
		checks = append(checks, checkURL(ctx, client, "annotator", cfg.Annotator.BaseURL))
	}
	checks = append(checks, checkStore(ctx))

	if err := report.Checks(os.Stdout, checks, reportOptions(cmd)); err != nil {
		return err
	}
	for _, c := range checks {
		if !c.OK {
			return fmt.Errorf("%s check failed", c.Name)
		}
	}
	return nil
}

func checkURL(ctx context.Context, client *http.Client, name, target string) report.Check {
	c := report.Check{Name: name, Target: target}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	req.Header.Set("User-Agent", cfg.Fetch.UserAgent)

	start := time.Now()
	resp, err := client.Do(req)
	c.Latency = time.Since(start)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	resp.Body.Close()
	c.OK = true
	c.Detail = resp.Status
	return c
}

func checkStore(ctx context.Context) report.Check {
	c := report.Check{Name: "store", Target: string(cfg.Store.Backend)}
	start := time.Now()
	st, err := openStore()
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		c.Detail = err.Error()
		return c
	}
	c.Latency = time.Since(start)
	c.OK = true
	if stats, err := st.Stats(ctx); err == nil {
		c.Detail = fmt.Sprintf("%d papers at %s", stats.Papers, stats.Location)
	}
	return c
}
