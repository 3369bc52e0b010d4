package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	statCmd := &cobra.Command{
		Use:   "stat gs://bucket/object",
		Short: "Print object metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}

	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fs, err := newFileSystem(ctx)
	if err != nil {
		return err
	}
	defer fs.Close()

	fi, err := fs.GetFileInfo(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("uri:        %s\n", fi.URI)
	fmt.Printf("size:       %d\n", fi.Info.Size)
	fmt.Printf("generation: %d\n", fi.Info.Generation)
	for k, v := range fi.Attributes {
		fmt.Printf("%s: %s\n", k, v)
	}
	return nil
}
