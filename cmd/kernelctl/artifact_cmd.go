package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentos-dev/agentkernel/pkg/artifacts"
)

func newArtifactCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Store and retrieve content-addressed artifacts",
	}
	cmd.AddCommand(newArtifactPutCommand(a), newArtifactGetCommand(a), newArtifactHashCommand(a))
	return cmd
}

func newArtifactPutCommand(a *app) *cobra.Command {
	var mimeType, runID string

	cmd := &cobra.Command{
		Use:   "put FILE",
		Short: "Store a file and print its handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}
			st, err := a.artifacts(cmd.Context())
			if err != nil {
				return err
			}
			h, err := st.Store(cmd.Context(), data, mimeType, runID)
			if err != nil {
				return err
			}
			if a.jsonOut {
				md, _ := st.Metadata(h)
				return a.printJSON(md)
			}
			a.printf("%s\n", h)
			return nil
		},
	}
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (detected when empty)")
	cmd.Flags().StringVar(&runID, "run", "", "Run id to attribute the artifact to")
	return cmd
}

func newArtifactGetCommand(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "get HANDLE",
		Short: "Write an artifact's bytes to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.artifacts(cmd.Context())
			if err != nil {
				return err
			}
			data, ok, err := st.Retrieve(cmd.Context(), artifacts.Handle(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("artifact %s not found", args[0])
			}
			if out != "" {
				return os.WriteFile(out, data, 0o644)
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newArtifactHashCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hash FILE",
		Short: "Print the handle a file would be stored under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			a.printf("%s\n", artifacts.HandleFor(artifacts.HashBytes(data)))
			return nil
		},
	}
}
