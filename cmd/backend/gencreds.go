package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hotspotbd/portal-backend/internal/credentials"
)

// gencredsCmd prints freshly generated guest credentials. Useful for
// handing out accounts at the counter without going through a payment
// submission.
func gencredsCmd() *cobra.Command {
	var count int
	var prefix string

	cmd := &cobra.Command{
		Use:   "gencreds",
		Short: "Generate guest credential pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := credentials.NewGenerator(prefix)

			for i := 0; i < count; i++ {
				username, password, err := gen.Generate()
				if err != nil {
					return fmt.Errorf("failed to generate credentials: %w", err)
				}
				fmt.Printf("%s\t%s\n", username, password)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of credential pairs")
	cmd.Flags().StringVar(&prefix, "prefix", "user", "username prefix")

	return cmd
}
