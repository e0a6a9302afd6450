package main

import (
	"github.com/spf13/cobra"

	vxerrors "github.com/terassyi/vx/internal/errors"
	"github.com/terassyi/vx/internal/pipeline"
)

var whichCmd = &cobra.Command{
	Use:   "which <name>[@version]",
	Short: "Print the resolved executable path for a runtime without running it",
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

		if result.Prepared == nil || result.Prepared.Executable == "" {
			return vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeNotFound, "no resolved executable for runtime").
				WithDetail("runtime", name)
		}
		cmd.Println(result.Prepared.Executable)
		return nil
	},
}
