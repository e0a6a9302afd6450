package main

import (
	"sort"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [runtime]",
	Short: "List known providers, or installed versions of one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, registry, err := buildPipeline()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			versions, err := p.Store.ListVersions(args[0])
			if err != nil {
				return err
			}
			for _, v := range versions {
				cmd.Println(v)
			}
			return nil
		}

		names := registry.Names()
		sort.Strings(names)
		for _, n := range names {
			cmd.Println(n)
		}
		return nil
	},
}
