package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/digitalliving/life-engine-cli/internal/api"
	"github.com/digitalliving/life-engine-cli/internal/iocontext"
)

func newUploadCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload <DLId> <file> [key=value ...]",
		Short: "Upload a file to an entity",
		Long: strings.TrimSpace(`
Upload a file as a multipart body to the entity with the given DLId.

Extra key=value arguments are sent as form fields before the file. Use "-"
as the file to read from stdin; --name then sets the uploaded file name.
`),
		Example: strings.TrimSpace(`
  le upload 42 ./receipt.pdf
  cat notes.txt | le upload 42 - --name notes.txt description="Meeting notes"
`),
		Args: cobra.MinimumNArgs(2),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			kv, err := parseKeyValues(args[2:])
			if err != nil {
				return err
			}
			uploadArgs := api.NewArgs("DLId", args[0])
			for _, p := range kv.Pairs() {
				uploadArgs.Set(p.Key, p.Value)
			}

			var reader io.Reader
			path := args[1]
			if path == "-" {
				if strings.TrimSpace(name) == "" {
					return fmt.Errorf("reading the file from stdin requires --name")
				}
				reader = iocontext.GetIO(cmd.Context()).In
			} else {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", path, err)
				}
				defer func() { _ = f.Close() }()
				reader = f
				if name == "" {
					name = filepath.Base(path)
				}
			}

			s, err := newClientFactory().open()
			if err != nil {
				return err
			}

			var reported atomic.Bool
			progress := func(p api.Progress) {
				reported.Store(true)
				if p.Total < 0 {
					statusf(cmd, "\rUploading %s: %d bytes", name, p.Loaded)
					return
				}
				statusf(cmd, "\rUploading %s: %d/%d bytes (%.0f%%)", name, p.Loaded, p.Total, p.Fraction()*100)
			}
			resp, err := s.client.Upload(cmd.Context(), &api.File{Name: name, Reader: reader}, uploadArgs, progress)
			if reported.Load() {
				statusf(cmd, "\n")
			}
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		}),
	}

	cmd.Flags().StringVar(&name, "name", "", "File name sent to the server (default: base name of <file>)")
	return cmd
}
