package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/aigateway/pkg/logutil"
	"github.com/lkarlslund/aigateway/pkg/version"
)

var rootLogLevel string

var rootCmd = &cobra.Command{
	Use:   "aigateway",
	Short: "AI capability gateway",
	Long:  "Stateless HTTP gateway exposing chat streaming, summarization, image generation, image interpretation and speech synthesis over a single upstream model provider.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return logutil.Configure(rootLogLevel)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print aigateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Detailed("aigateway"))
		},
	})
}
