package main

import (
	"github.com/spf13/cobra"

	"github.com/terassyi/vx/internal/pipeline"
)

var installCmd = &cobra.Command{
	Use:   "install <name>[@version]",
	Short: "Resolve and ensure a runtime is installed, without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, version := parseRuntimeRequest(args[0])

		p, _, err := buildPipeline()
		if err != nil {
			return err
		}

		result, err := p.Run(cmd.Context(), pipeline.RunRequest{
			Resolve: pipeline.ResolveRequest{Runtime: name, Version: version},
			DryRun:  true,
		})
		if err != nil {
			return err
		}

		for _, r := range result.Plan.Runtimes {
			cmd.Printf("%s@%s -> %s\n", r.Runtime, r.Version, r.InstallPath)
		}
		return nil
	},
}
