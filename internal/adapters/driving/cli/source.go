package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage data sources",
	Long: `List, inspect, and administer the engine's data sources.
All subcommands talk to a running engine over its admin API.`,
	RunE: runSourceList,
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	RunE:  runSourceList,
}

var sourceGetCmd = &cobra.Command{
	Use:   "get [source-id]",
	Short: "Show one source's configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceGet,
}

var sourceStatusCmd = &cobra.Command{
	Use:   "status [source-id]",
	Short: "Show one source's live status",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceStatus,
}

var sourceEnableCmd = &cobra.Command{
	Use:   "enable [source-id]",
	Short: "Start polling a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceEnable,
}

var sourceDisableCmd = &cobra.Command{
	Use:   "disable [source-id]",
	Short: "Stop polling a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceDisable,
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove [source-id]",
	Short: "Remove a disabled source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceRemove,
}

var sourcePollCmd = &cobra.Command{
	Use:   "poll [source-id]",
	Short: "Trigger an immediate poll",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcePoll,
}

var (
	updateInterval string
	updateQuota    int
	updateBurst    int
)

var sourceUpdateCmd = &cobra.Command{
	Use:   "update [source-id]",
	Short: "Update a source's cadence or quota",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceUpdate,
}

func init() {
	sourceUpdateCmd.Flags().StringVar(&updateInterval, "interval", "", "New poll interval (e.g. 30m)")
	sourceUpdateCmd.Flags().IntVar(&updateQuota, "quota", 0, "New hourly request quota")
	sourceUpdateCmd.Flags().IntVar(&updateBurst, "burst", 0, "New burst allowance")

	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceGetCmd)
	sourceCmd.AddCommand(sourceStatusCmd)
	sourceCmd.AddCommand(sourceEnableCmd)
	sourceCmd.AddCommand(sourceDisableCmd)
	sourceCmd.AddCommand(sourceRemoveCmd)
	sourceCmd.AddCommand(sourcePollCmd)
	sourceCmd.AddCommand(sourceUpdateCmd)
	rootCmd.AddCommand(sourceCmd)
}

func runSourceList(cmd *cobra.Command, _ []string) error {
	client := newAPIClient(serverAddr)

	var body struct {
		Sources []sourceInfo `json:"sources"`
	}
	if err := client.get("/api/v1/sources", &body); err != nil {
		return err
	}

	if len(body.Sources) == 0 {
		cmd.Println("No sources configured.")
		return nil
	}

	cmd.Printf("%-16s %-10s %-10s %-10s %s\n", "ID", "TYPE", "INTERVAL", "QUOTA/H", "ENABLED")
	for _, src := range body.Sources {
		interval := src.PollInterval
		if interval == "" {
			interval = "-"
		}
		cmd.Printf("%-16s %-10s %-10s %-10d %t\n", src.ID, src.Type, interval, src.QuotaHourly, src.Enabled)
	}
	return nil
}

func runSourceGet(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverAddr)

	var src sourceInfo
	if err := client.get("/api/v1/sources/"+args[0], &src); err != nil {
		return err
	}

	cmd.Printf("ID:            %s\n", src.ID)
	if src.Name != "" {
		cmd.Printf("Name:          %s\n", src.Name)
	}
	cmd.Printf("Type:          %s\n", src.Type)
	cmd.Printf("Base URL:      %s\n", src.BaseURL)
	cmd.Printf("Auth:          %s\n", src.AuthMode)
	cmd.Printf("Interval:      %s\n", src.PollInterval)
	cmd.Printf("Quota:         %d/hour (burst %d)\n", src.QuotaHourly, src.QuotaBurst)
	cmd.Printf("Fast lane:     %t\n", src.FastLane)
	cmd.Printf("Enabled:       %t\n", src.Enabled)
	return nil
}

func runSourceStatus(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverAddr)

	var status sourceStatusInfo
	if err := client.get("/api/v1/sources/"+args[0]+"/status", &status); err != nil {
		return err
	}

	cmd.Printf("Source:              %s (%s)\n", status.Source.ID, status.Source.Type)
	cmd.Printf("Polls:               %d (%d failed)\n", status.Polls, status.Failures)
	cmd.Printf("Consecutive fails:   %d\n", status.ConsecutiveFailures)
	cmd.Printf("Uptime:              %.1f%%\n", status.Uptime*100)
	cmd.Printf("Records processed:   %d\n", status.RecordsProcessed)
	cmd.Printf("Records rejected:    %d\n", status.RecordsRejected)
	cmd.Printf("Quota utilisation:   %.1f%%\n", status.QuotaUtilisation*100)
	cmd.Printf("Remaining quota:     %d\n", status.RemainingQuota)
	if status.NextPoll != nil {
		cmd.Printf("Next poll:           %s\n", status.NextPoll.Local().Format("15:04:05"))
	}
	if status.Polling {
		cmd.Println("A poll is in flight right now.")
	}
	if status.LastError != "" {
		cmd.Printf("Last error:          %s\n", status.LastError)
	}
	return nil
}

func runSourceEnable(cmd *cobra.Command, args []string) error {
	if err := newAPIClient(serverAddr).post("/api/v1/sources/"+args[0]+"/enable", nil, nil); err != nil {
		return err
	}
	cmd.Printf("Source %s enabled.\n", args[0])
	return nil
}

func runSourceDisable(cmd *cobra.Command, args []string) error {
	if err := newAPIClient(serverAddr).post("/api/v1/sources/"+args[0]+"/disable", nil, nil); err != nil {
		return err
	}
	cmd.Printf("Source %s disabled.\n", args[0])
	return nil
}

func runSourceRemove(cmd *cobra.Command, args []string) error {
	if err := newAPIClient(serverAddr).delete("/api/v1/sources/" + args[0]); err != nil {
		return err
	}
	cmd.Printf("Source %s removed.\n", args[0])
	return nil
}

func runSourcePoll(cmd *cobra.Command, args []string) error {
	if err := newAPIClient(serverAddr).post("/api/v1/sources/"+args[0]+"/poll", nil, nil); err != nil {
		return err
	}
	cmd.Printf("Poll triggered for %s.\n", args[0])
	return nil
}

func runSourceUpdate(cmd *cobra.Command, args []string) error {
	if updateInterval == "" && updateQuota == 0 && updateBurst == 0 {
		return fmt.Errorf("nothing to update: pass --interval, --quota, or --burst")
	}

	client := newAPIClient(serverAddr)

	// Read-modify-write so unspecified fields keep their values.
	var src sourceInfo
	if err := client.get("/api/v1/sources/"+args[0], &src); err != nil {
		return err
	}
	if updateInterval != "" {
		src.PollInterval = updateInterval
	}
	if updateQuota > 0 {
		src.QuotaHourly = updateQuota
	}
	if updateBurst > 0 {
		src.QuotaBurst = updateBurst
	}

	if err := client.put("/api/v1/sources/"+args[0], src, nil); err != nil {
		return err
	}
	cmd.Printf("Source %s updated.\n", args[0])
	return nil
}
