package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "credence",
		Short:         "Multi-agent content credibility analyzer",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config and .)")
	root.AddCommand(serveCMD(&cfgPath), analyzeCMD(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "credence:", err)
		os.Exit(1)
	}
}
