package cli

import (
	"github.com/absmach/sparkpipe/pkg/sdk"
	"github.com/spf13/cobra"
)

var hsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	hsdk = s
}

func NewTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology [device]",
		Short: "Show live device topology",
		Long: `Show every group, node and device seen since startup with the latest tag values.

Examples:
  # Whole tree
  sparkpipe-cli topology

  # One device, by bare name or full key
  sparkpipe-cli topology plant1/edge1/pump`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			device := ""
			if len(args) == 1 {
				device = args[0]
			}

			topo, err := hsdk.Topology(device)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if topo.Message != "" {
				logMessageCmd(*cmd, topo.Message)

				return
			}
			logJSONCmd(*cmd, topo.Paths)
		},
	}
}

func NewTimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "time",
		Short: "Show historian time",
		Long:  `Show the historian clock in its configured time zone.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			now, err := hsdk.CurrentTime()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logMessageCmd(*cmd, now)
		},
	}
}

func NewTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags [current|history|count]",
		Short: "Tag values",
		Long:  `Read current and historical tag values.`,
	}

	var q sdk.Query

	currentCmd := &cobra.Command{
		Use:   "current <device> <tag>",
		Short: "Current tag value",
		Long:  `Show the latest received value of a tag.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			v, err := hsdk.CurrentTagValue(args[0], args[1])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, v)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Tag history",
		Long: `Query stored tag values.

Examples:
  # Raw values of one tag for an hour
  sparkpipe-cli tags history --tag temperature --start "2024-05-01 08:00:00" --end "2024-05-01 09:00:00"

  # Five minute averages with an automatically sized bucket
  sparkpipe-cli tags history --filter "device = 'pump' AND tag LIKE 'temp%'" --start "2024-05-01" --bucket auto`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			res, err := hsdk.TagHistory(q)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logResultCmd(*cmd, res)
		},
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count tag values",
		Long:  `Count stored tag values matching the query flags.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			n, err := hsdk.TagHistoryCount(q)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, map[string]uint64{"count": n})
		},
	}

	queryFlags(historyCmd, &q, true)
	queryFlags(countCmd, &q, false)
	countCmd.Flags().StringVar(&q.Tag, "tag", "", "Tag name")
	historyCmd.Flags().StringVar(&q.Tag, "tag", "", "Tag name")

	cmd.AddCommand(currentCmd)
	cmd.AddCommand(historyCmd)
	cmd.AddCommand(countCmd)

	return cmd
}

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [history|count]",
		Short: "Device status",
		Long:  `Query device online and offline transitions.`,
	}

	var q sdk.Query

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Status history",
		Long: `Query stored status transitions.

Examples:
  sparkpipe-cli status history --device pump --status offline --start "2024-05-01"`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			res, err := hsdk.Status(q)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logResultCmd(*cmd, res)
		},
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count status transitions",
		Long:  `Count stored status transitions matching the query flags.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			n, err := hsdk.StatusCount(q)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, map[string]uint64{"count": n})
		},
	}

	queryFlags(historyCmd, &q, true)
	queryFlags(countCmd, &q, false)
	historyCmd.Flags().StringVar(&q.Status, "status", "", "Status (online or offline)")
	countCmd.Flags().StringVar(&q.Status, "status", "", "Status (online or offline)")

	cmd.AddCommand(historyCmd)
	cmd.AddCommand(countCmd)

	return cmd
}

func queryFlags(cmd *cobra.Command, q *sdk.Query, rows bool) {
	cmd.Flags().StringVarP(&q.Filter, "filter", "f", "", "SQL-like filter, e.g. \"device = 'pump' AND ts >= '2024-05-01'\"")
	cmd.Flags().StringVarP(&q.Device, "device", "d", "", "Device name or group/node/device key")
	cmd.Flags().StringVar(&q.Start, "start", "", "Inclusive start time")
	cmd.Flags().StringVar(&q.End, "end", "", "Exclusive end time")
	if !rows {
		return
	}
	cmd.Flags().StringVarP(&q.Bucket, "bucket", "b", "", "Bucket interval, e.g. \"5 minutes\" or auto")
	cmd.Flags().StringVarP(&q.Aggregate, "aggregate", "a", "", "Bucket aggregate (avg, min, max, count)")
	cmd.Flags().StringVar(&q.Order, "order", "", "asc or desc")
	cmd.Flags().IntVarP(&q.Limit, "limit", "l", 0, "Maximum rows")
}

func logResultCmd(cmd cobra.Command, res sdk.Result) {
	if res.Message != "" {
		logMessageCmd(cmd, res.Message)

		return
	}
	if len(res.Buckets) > 0 {
		logJSONCmd(cmd, res)

		return
	}
	logJSONCmd(cmd, res.Rows)
	if res.Truncated {
		logMessageCmd(cmd, "results truncated, narrow the range or raise --limit")
	}
}
