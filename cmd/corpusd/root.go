package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/httpapi"
	"github.com/fyrsmithlabs/corpusd/internal/project"
	"github.com/fyrsmithlabs/corpusd/internal/registry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "corpusd",
		Short:         "Content-addressed corpus sync and retrieval",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newRegisterCmd(&configPath),
		newSyncCmd(&configPath),
		newQueryCmd(&configPath),
		newDeleteCmd(&configPath),
		newCleanOrphansCmd(&configPath),
		newStatusCmd(&configPath),
	)
	return root
}

// withApp builds the component graph, runs fn and tears everything down.
func withApp(configPath string, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(context.Background(), a)
}

// withProject acquires a project handle around fn.
func withProject(ctx context.Context, a *app, name string, fn func(h *project.Handle) error) error {
	h, err := a.manager.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.manager.Release(name); err != nil {
			a.logger.Warn("releasing project", zap.String("project", name), zap.Error(err))
		}
	}()
	return fn(h)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				server := httpapi.NewServer(a.manager, a.reconciler, a.planner, a.logger)

				errCh := make(chan error, 1)
				go func() {
					errCh <- server.Start(a.cfg.HTTP.Addr)
				}()
				a.logger.Info("serving", zap.String("addr", a.cfg.HTTP.Addr))

				stop := make(chan os.Signal, 1)
				signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

				select {
				case err := <-errCh:
					return err
				case <-stop:
				}

				shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
		},
	}
}

func newRegisterCmd(configPath *string) *cobra.Command {
	var docType, citation string
	var year int

	cmd := &cobra.Command{
		Use:   "register <project> <path>",
		Short: "Register a document in a project's registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				content, err := os.ReadFile(args[1])
				if err != nil {
					return fmt.Errorf("reading document: %w", err)
				}
				return withProject(ctx, a, args[0], func(h *project.Handle) error {
					doc, created, err := h.Registry().Register(ctx, registry.RegisterRequest{
						Path:     args[1],
						DocType:  docType,
						Year:     year,
						Citation: citation,
						Content:  content,
					})
					if err != nil {
						return err
					}
					return printJSON(map[string]any{
						"id":           doc.ID,
						"content_hash": doc.ContentHash,
						"status":       doc.Status,
						"created":      created,
					})
				})
			})
		},
	}
	cmd.Flags().StringVar(&docType, "doc-type", "", "document type")
	cmd.Flags().IntVar(&year, "year", 0, "publication year")
	cmd.Flags().StringVar(&citation, "citation", "", "citation string")
	return cmd
}

func newSyncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <project>",
		Short: "Embed pending documents into the vector index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				return withProject(ctx, a, args[0], func(h *project.Handle) error {
					result, err := a.reconciler.Sync(ctx, h)
					if err != nil {
						return err
					}
					return printJSON(result)
				})
			})
		},
	}
}

func newQueryCmd(configPath *string) *cobra.Command {
	var k, yearFrom, yearTo int
	var docTypes []string

	cmd := &cobra.Command{
		Use:   "query <project> <text>",
		Short: "Retrieve chunks relevant to a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				filter := &vectorstore.Filter{DocTypes: docTypes}
				if cmd.Flags().Changed("year-from") {
					filter.YearFrom = &yearFrom
				}
				if cmd.Flags().Changed("year-to") {
					filter.YearTo = &yearTo
				}
				return withProject(ctx, a, args[0], func(h *project.Handle) error {
					result, err := a.planner.Query(ctx, h, args[1], filter, k)
					if err != nil {
						return err
					}
					return printJSON(result)
				})
			})
		},
	}
	cmd.Flags().IntVar(&k, "k", 0, "override candidate count")
	cmd.Flags().StringSliceVar(&docTypes, "doc-type", nil, "restrict to document types")
	cmd.Flags().IntVar(&yearFrom, "year-from", 0, "earliest year")
	cmd.Flags().IntVar(&yearTo, "year-to", 0, "latest year")
	return cmd
}

func newDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project> <document-id>",
		Short: "Remove a document and its index points",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[1])
			}
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				return withProject(ctx, a, args[0], func(h *project.Handle) error {
					result, err := a.reconciler.Delete(ctx, h, id)
					if err != nil {
						return err
					}
					return printJSON(result)
				})
			})
		},
	}
}

func newCleanOrphansCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clean-orphans <project>",
		Short: "Delete index points whose document left the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				return withProject(ctx, a, args[0], func(h *project.Handle) error {
					result, err := a.reconciler.CleanOrphans(ctx, h)
					if err != nil {
						return err
					}
					return printJSON(result)
				})
			})
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <project>",
		Short: "Show registry and index counts for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				return withProject(ctx, a, args[0], func(h *project.Handle) error {
					status, err := a.reconciler.Status(ctx, h)
					if err != nil {
						return err
					}
					return printJSON(status)
				})
			})
		},
	}
}
