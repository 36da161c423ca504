package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"adsbstats.dev/collector/internal/alert"
	"adsbstats.dev/collector/internal/store"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage alert rules",
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an enabled alert rule",
	Example: `  adsb-collector rules add --name Emergency --kind squawk --value 7700
  adsb-collector rules add --name Lufthansa --kind callsign --value DLH
  adsb-collector rules add --name "Jumbo" --kind aircraft_type --value B748`,
	RunE: runRulesAdd,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules",
	RunE:  runRulesList,
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable ID",
	Short: "Enable an alert rule",
	Args:  cobra.ExactArgs(1),
	RunE:  setRuleEnabled(true),
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable ID",
	Short: "Disable an alert rule",
	Args:  cobra.ExactArgs(1),
	RunE:  setRuleEnabled(false),
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesAddCmd, rulesListCmd, rulesEnableCmd, rulesDisableCmd)

	rulesAddCmd.Flags().String("name", "", "Rule name used in notification titles")
	rulesAddCmd.Flags().String("kind", "", "Rule kind: squawk, callsign or aircraft_type")
	rulesAddCmd.Flags().String("value", "", "Squawk code, callsign prefix or ICAO type designator")
	_ = rulesAddCmd.MarkFlagRequired("name")
	_ = rulesAddCmd.MarkFlagRequired("kind")
	_ = rulesAddCmd.MarkFlagRequired("value")
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	kind, _ := cmd.Flags().GetString("kind")
	value, _ := cmd.Flags().GetString("value")

	// Validate and normalise the same way the engine reads rules back.
	parsed, err := alert.RuleFromStore(store.AlertRule{Name: name, Kind: kind, Value: value})
	if err != nil {
		return err
	}

	log := GetLogger()
	db, err := openDB(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseDB(db, log) }()

	rule := &store.AlertRule{
		Name:    strings.TrimSpace(name),
		Kind:    parsed.Kind.String(),
		Value:   parsed.Value,
		Enabled: true,
	}
	if err := store.CreateRule(cmd.Context(), db, rule); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created rule %d: %s %s=%s\n", rule.ID, rule.Name, rule.Kind, rule.Value)
	return nil
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	log := GetLogger()
	db, err := openDB(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseDB(db, log) }()

	rules, err := store.ListRules(cmd.Context(), db)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tVALUE\tENABLED\tCREATED")
	for _, r := range rules {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n", r.ID, r.Name, r.Kind, r.Value, r.Enabled, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func setRuleEnabled(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rule id %q", args[0])
		}

		log := GetLogger()
		db, err := openDB(log)
		if err != nil {
			return err
		}
		defer func() { _ = store.CloseDB(db, log) }()

		if err := store.SetRuleEnabled(cmd.Context(), db, uint(id), enabled); err != nil {
			return err
		}

		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rule %d %s\n", id, state)
		return nil
	}
}
