package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/power-coordinator/internal/eventlog"
	"github.com/danielpatrickdp/power-coordinator/internal/settings"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to power_coordinator.db")
	last := flag.Int("last", 20, "show N most recent power events")
	kind := flag.String("kind", "", "filter events to one kind")
	showSettings := flag.Bool("settings", false, "show the settings table instead of events")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/power_coordinator.db [--last N] [--kind k] [--settings] [--json]")
		os.Exit(2)
	}

	store, err := settings.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *showSettings {
		if err := runSettingsMode(store, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := runEventsMode(store, *last, *kind, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region events-mode

type eventRow struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Detail      string `json:"detail,omitempty"`
	Wakefulness string `json:"wakefulness"`
	CreatedAt   string `json:"created_at"`
}

func runEventsMode(store *settings.Store, last int, kindFilter string, jsonOut bool) error {
	events, err := eventlog.New(store.DB())
	if err != nil {
		return err
	}
	entries, err := events.Recent(last)
	if err != nil {
		return err
	}

	rows := make([]eventRow, 0, len(entries))
	for _, e := range entries {
		if kindFilter != "" && e.Kind != kindFilter {
			continue
		}
		rows = append(rows, eventRow{
			ID:          e.ID,
			Kind:        e.Kind,
			Detail:      e.Detail,
			Wakefulness: e.Wakefulness,
			CreatedAt:   e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no events found")
		return nil
	}

	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("%-26s  %-11s  %-20s  %s\n", "Kind", "Wakefulness", "Time", "Detail")
	fmt.Printf("%-26s+-%-11s+-%-20s+-%s\n",
		"--------------------------", "-----------", "--------------------", "------------------------------")
	for _, r := range rows {
		fmt.Printf("%-26s  %-11s  %-20s  %s\n", r.Kind, r.Wakefulness, r.CreatedAt, r.Detail)
	}
	return nil
}

// #endregion events-mode

// #region settings-mode

func runSettingsMode(store *settings.Store, jsonOut bool) error {
	all, err := store.All()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(os.Stderr, "no settings found")
		return nil
	}

	if jsonOut {
		return printJSON(all)
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%-40s  %s\n", "Key", "Value")
	fmt.Printf("%-40s+-%s\n", "----------------------------------------", "--------------------")
	for _, k := range keys {
		fmt.Printf("%-40s  %s\n", k, all[k])
	}
	return nil
}

// #endregion settings-mode

// #region helpers

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
