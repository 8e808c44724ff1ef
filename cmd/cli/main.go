package main

import (
	"log"
	"time"

	"github.com/absmach/sparkpipe"
	"github.com/absmach/sparkpipe/cli"
	"github.com/absmach/sparkpipe/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	defHistorianURL    = "http://localhost:9030"
	defTLSVerification = false
	defTimeout         = 30 * time.Second
	configPath         string
	historianURL       string
	tlsVerification    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sparkpipe-cli",
		Short: "Sparkpipe CLI",
		Long:  `Sparkpipe CLI queries the live device state and tag history of a Sparkplug historian.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			sdkConf := sdk.Config{
				HistorianURL:    defHistorianURL,
				TLSVerification: defTLSVerification,
				Timeout:         defTimeout,
			}
			if configPath != "" {
				cfg, err := sparkpipe.LoadConfig(configPath)
				if err != nil {
					return err
				}
				timeout, err := cfg.Historian.TimeoutDuration()
				if err != nil {
					return err
				}
				sdkConf.HistorianURL = cfg.Historian.URL
				sdkConf.TLSVerification = cfg.Historian.TLSVerification
				sdkConf.Timeout = timeout
			}
			if cmd.Flags().Changed("historian-url") {
				sdkConf.HistorianURL = historianURL
			}
			if cmd.Flags().Changed("tls-verification") {
				sdkConf.TLSVerification = tlsVerification
			}
			cli.SetSDK(sdk.NewSDK(sdkConf))

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVarP(&historianURL, "historian-url", "u", defHistorianURL, "Historian API URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerification, "tls-verification", defTLSVerification, "Verify the historian TLS certificate")

	rootCmd.AddCommand(cli.NewTopologyCmd())
	rootCmd.AddCommand(cli.NewTimeCmd())
	rootCmd.AddCommand(cli.NewTagsCmd())
	rootCmd.AddCommand(cli.NewStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
