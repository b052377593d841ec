package main

import (
	"fmt"

	"github.com/franckalain/sosscan/internal/ml"
	"github.com/spf13/cobra"
)

func promptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the instruction sent with every image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), ml.Instruction())
			return err
		},
	}
}
