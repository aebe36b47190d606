package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nidar-uav/ground-control/internal/storage"
)

var missionsDBPath string

var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "List recorded missions",
	Long:  "missions prints every mission in the database with its team and time range.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storage.NewSqliteStore(missionsDBPath)
		defer store.Close()

		missions, err := store.Missions(context.Background())
		if err != nil {
			return fmt.Errorf("reading missions: %w", err)
		}
		if len(missions) == 0 {
			fmt.Println("no missions recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTEAM\tSTART\tEND")
		for _, m := range missions {
			end := "running"
			if m.EndTime != nil {
				end = m.EndTime.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.TeamID, m.StartTime.Local().Format(time.DateTime), end)
		}
		return w.Flush()
	},
}

func init() {
	missionsCmd.Flags().StringVar(&missionsDBPath, "db", "mission_data.db", "Path to the mission database")
}
