package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rightsize",
	Short: "Rightsize — VM right-sizing pipeline",
	Long:  "Rightsize analyzes VM utilization datasets, prices downsizing candidates against live or catalog prices, and recommends cheaper SKUs with projected monthly savings. Runs are traced end to end and can be scored by an LLM judge.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/rightsize.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
