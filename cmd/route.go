package main

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"adsbstats.dev/collector/internal/route"
	"adsbstats.dev/collector/internal/store"
)

var routeCmd = &cobra.Command{
	Use:   "route CALLSIGN",
	Short: "Resolve the route of a callsign",
	Long: `Print the origin and destination of a callsign as JSON. Answers come
from the route cache while fresh; otherwise adsbdb is queried and the cache
updated.`,
	Args: cobra.ExactArgs(1),
	RunE: runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	db, err := openDB(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseDB(db, log) }()

	resolver, err := newResolver(log, db, nil)
	if err != nil {
		return err
	}

	rt, err := resolver.Resolve(cmd.Context(), args[0])
	if errors.Is(err, route.ErrNotFound) {
		return fmt.Errorf("no route known for %s", args[0])
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rt)
}
