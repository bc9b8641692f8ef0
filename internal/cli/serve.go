package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"studyrag/internal/httpapi"
	"studyrag/internal/transport/redisbus"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		withHTTP  bool
		withRedis bool
		addr      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve questions over Redis pub/sub and/or HTTP",
		Long: `Run the tutor as a long-lived service.

--redis subscribes to the configured request channel and streams each
answer to "<response_prefix><chatId>". --http serves POST /qa.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !withHTTP && !withRedis {
				return fmt.Errorf("enable at least one of --http or --redis")
			}
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			tutor, labels, closeAll, err := a.tutor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()
			a.logger.Info("tutor ready", "sources", labels)

			g, ctx := errgroup.WithContext(cmd.Context())
			if withRedis {
				client, err := redisbus.NewClient(ctx, a.cfg.Redis)
				if err != nil {
					return err
				}
				defer client.Close()
				worker := redisbus.NewWorker(client, tutor, a.cfg.Redis, a.logger)
				g.Go(func() error { return worker.Run(ctx) })
			}
			if withHTTP {
				h := httpapi.NewHandler(tutor, a.logger)
				g.Go(func() error { return httpapi.Serve(ctx, a.cfg.HTTP.Addr, h, a.logger) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withHTTP, "http", false, "serve the JSON API")
	cmd.Flags().BoolVar(&withRedis, "redis", false, "run the Redis request worker")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}
