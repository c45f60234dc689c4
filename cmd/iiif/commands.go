package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/greut/iiif-tiler/iiif"
	"github.com/greut/iiif-tiler/pipeline"
	"github.com/greut/iiif-tiler/server"
	"github.com/greut/iiif-tiler/watcher"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Args:  cobra.NoArgs,
		Short: "Serve the derivatives and ingest what lands in the watch folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.config, a.store, a.engine, a.logger.Named("http"))
			httpServer := &http.Server{
				Addr:              a.config.Listen(),
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			p := pool.New().WithContext(ctx).WithCancelOnError()

			p.Go(func(ctx context.Context) error {
				a.logger.Info("listening", zap.String("addr", httpServer.Addr), zap.String("baseURL", a.config.BaseURL))
				if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
					return err
				}
				return nil
			})

			p.Go(func(ctx context.Context) error {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), a.config.SendTimeout.Duration)
				defer cancel()
				return httpServer.Shutdown(shutdown)
			})

			if a.config.Watch.Folder != "" {
				w, err := watcher.New(a.config.Watch, ingestFunc(a.pipeline), a.logger.Named("watcher"))
				if err != nil {
					return err
				}
				p.Go(w.Run)
			}

			return p.Wait()
		},
	}
}

// ingestFunc waits for the whole ingestion of one file.
func ingestFunc(p *pipeline.Pipeline) watcher.IngestFunc {
	return func(ctx context.Context, filePath string, properties map[string]interface{}) (pipeline.Aggregate, error) {
		return p.Ingest(ctx, filePath, properties, false).Wait(ctx)
	}
}

func newIngestCommand(opts *options) *cobra.Command {
	var (
		id         string
		tileSize   int
		cleanup    bool
		properties map[string]string
	)

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Args:  cobra.MinimumNArgs(1),
		Short: "Produce the tiles, the thumbnail and the info.json of images",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id != "" && len(args) > 1 {
				return fmt.Errorf("--id only applies to a single file")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			jobs := make([]*pipeline.Ingestion, len(args))
			for i, filePath := range args {
				props := map[string]interface{}{}
				for k, v := range properties {
					props[k] = v
				}
				if id != "" {
					props["id"] = id
				}
				if tileSize > 0 {
					props["tile_size"] = tileSize
				}
				jobs[i] = a.pipeline.Ingest(ctx, filePath, props, cleanup)
			}

			failed := 0
			for _, job := range jobs {
				aggregate, err := job.Wait(ctx)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", job.FilePath, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d derivatives\n", job.FilePath, aggregate.Count(pipeline.TopicWorker))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(jobs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Identifier of the image, the file name by default")
	cmd.Flags().IntVar(&tileSize, "tile-size", 0, "Tile size, the configured one by default")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove the source files once processed")
	cmd.Flags().StringToStringVarP(&properties, "property", "p", nil, "Metadata saved along with the image (key=value)")
	return cmd
}

func newTilesCommand() *cobra.Command {
	var (
		prefix string
		id     string
	)

	cmd := &cobra.Command{
		Use:   "tiles WIDTH HEIGHT [TILESIZE]",
		Args:  cobra.RangeArgs(2, 3),
		Short: "Print the tile paths of an image",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.Trim(prefix, "/") == "" {
				return fmt.Errorf("the prefix cannot be empty")
			}

			values := []int{0, 0, 1024}
			for i, arg := range args {
				n, err := strconv.Atoi(arg)
				if err != nil || n <= 0 {
					return fmt.Errorf("%#v is not a positive integer", arg)
				}
				values[i] = n
			}

			out := cmd.OutOrStdout()
			for _, path := range iiif.TilePaths(prefix, id, values[2], values[0], values[1]) {
				fmt.Fprintln(out, path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "iiif", "Path prefix of the requests")
	cmd.Flags().StringVar(&id, "id", "id", "Identifier of the image")
	return cmd
}
