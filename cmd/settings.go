package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"adsbstats.dev/collector/internal/store"
)

var settingKeys = []string{
	store.SettingAlertsEnabled,
	store.SettingPushoverUserKey,
	store.SettingPushoverAPIToken,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change runtime settings",
	Long: `Runtime settings live in the database and are re-read by the collector
at the start of every cycle, so changes apply without a restart.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show settings with secrets masked",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:       "set KEY VALUE",
	Short:     "Set a setting",
	Args:      cobra.ExactArgs(2),
	ValidArgs: settingKeys,
	RunE:      runSettingsSet,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	log := GetLogger()
	db, err := openDB(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseDB(db, log) }()

	rows, err := store.ListSettings(cmd.Context(), db)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, row := range rows {
		value := row.Value
		if row.Key != store.SettingAlertsEnabled {
			value = mask(value)
		}
		fmt.Fprintf(w, "%s\t%s\n", row.Key, value)
	}
	return w.Flush()
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], strings.TrimSpace(args[1])
	if !slices.Contains(settingKeys, key) {
		return fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(settingKeys, ", "))
	}

	log := GetLogger()
	db, err := openDB(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseDB(db, log) }()

	if err := store.SetSetting(cmd.Context(), db, key, value); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", key)
	return nil
}

// mask keeps the last four characters of a secret.
func mask(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
