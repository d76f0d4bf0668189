package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewJobsCommand() *cobra.Command {
	f := NewBackendFlags()
	var run []string
	var list bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run the maintenance jobs: on their schedule, or once with --run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := f.build(ctx)
			if err != nil {
				return err
			}
			scheduler, err := b.scheduler()
			if err != nil {
				return err
			}

			if list {
				for _, name := range scheduler.Names() {
					fmt.Fprintln(os.Stdout, name)
				}
				return nil
			}
			if len(run) == 0 {
				log.WithField("jobs", scheduler.Names()).Info("running jobs on schedule")
				scheduler.Run(ctx)
				return nil
			}
			for _, name := range run {
				log.WithField("job", name).Info("running job")
				if err := scheduler.RunOnce(ctx, name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	cmd.Flags().StringSliceVar(&run, "run", nil, "Run the named jobs once and exit")
	cmd.Flags().BoolVar(&list, "list", false, "List the job names")
	return cmd
}
