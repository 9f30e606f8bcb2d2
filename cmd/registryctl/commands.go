package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"docregistry/internal/hasher"
	"docregistry/internal/registry"
	"docregistry/internal/service"
)

// offlineAnnotation marks commands that need no backend.
const offlineAnnotation = "offline"

type cliApp struct {
	open     func(ctx context.Context) error
	cleanup  func()
	svc      service.DocumentService
	registry registry.Registry
	timeout  time.Duration
}

func (a *cliApp) ensureBackend(ctx context.Context) error {
	if a.svc != nil || a.open == nil {
		return nil
	}
	return a.open(ctx)
}

func (a *cliApp) close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

func newRootCmd(a *cliApp) *cobra.Command {
	root := &cobra.Command{
		Use:           "registryctl",
		Short:         "Inspect the on-chain document registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[offlineAnnotation] == "true" {
				return nil
			}
			return a.ensureBackend(cmd.Context())
		},
	}
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "deadline for registry calls")

	root.AddCommand(
		newHashCmd(),
		newVerifyCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newTotalCmd(a),
	)
	return root
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "hash <file>",
		Short:       "Print the registry hash of a file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{offlineAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			d := hasher.Sum(body)
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"file":    args[0],
				"size":    len(body),
				"hash":    d.Hex(),
				"bytes32": d.Bytes32Hex(),
			})
		},
	}
}

func newVerifyCmd(a *cliApp) *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check whether a file is registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}
			ct := contentType
			if ct == "" {
				if ct, err = detectContentType(args[0], f); err != nil {
					return err
				}
			}

			ctx, cancel := a.callContext(cmd)
			defer cancel()
			res, err := a.svc.Verify(ctx, f, ct, st.Size())
			if err != nil {
				return cliError(err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "MIME type (detected from the file when empty)")
	return cmd
}

func newGetCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a registered document by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.callContext(cmd)
			defer cancel()
			rec, err := a.svc.Get(ctx, args[0])
			if err != nil {
				return cliError(err)
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newListCmd(a *cliApp) *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.callContext(cmd)
			defer cancel()
			res, err := a.svc.List(ctx, page, limit)
			if err != nil {
				return cliError(err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size (max 100)")
	return cmd
}

func newTotalCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Print the number of registered documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.callContext(cmd)
			defer cancel()
			n, err := a.registry.TotalCount(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"total": strconv.FormatUint(n, 10)})
		},
	}
}

func (a *cliApp) callContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// detectContentType prefers the extension and falls back to sniffing.
// f is rewound afterwards.
func detectContentType(name string, f io.ReadSeeker) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct, nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

func cliError(err error) error {
	return fmt.Errorf("%s: %w", service.Code(err), err)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
