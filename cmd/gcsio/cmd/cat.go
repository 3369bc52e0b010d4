package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	catOffset int64
	catLength int64
)

func init() {
	catCmd := &cobra.Command{
		Use:   "cat gs://bucket/object",
		Short: "Read an object (or a sub-range) to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runCat,
	}

	catCmd.Flags().Int64Var(&catOffset, "offset", 0, "start offset")
	catCmd.Flags().Int64Var(&catLength, "length", -1, "bytes to read (-1 for the rest of the object)")

	rootCmd.AddCommand(catCmd)
}

func runCat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fs, err := newFileSystem(ctx)
	if err != nil {
		return err
	}
	defer fs.Close()

	st, err := fs.Open(ctx, args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	if catOffset > 0 {
		if err := st.Seek(catOffset); err != nil {
			return err
		}
	}

	var src io.Reader = st
	if catLength >= 0 {
		src = io.LimitReader(st, catLength)
	}

	_, err = io.Copy(os.Stdout, src)
	return err
}
