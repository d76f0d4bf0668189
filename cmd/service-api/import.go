package main

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/reportportal/service-api/pkg/importer"
	"github.com/reportportal/service-api/pkg/messaging"
)

func NewImportCommand() *cobra.Command {
	f := NewBackendFlags()
	var login, projectName, launchName string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a JUnit XML report, or a zip of reports, as a new launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := f.build(ctx)
			if err != nil {
				return err
			}

			user, project, err := messaging.DBPrincipalResolver(b.dbc)(ctx, login, projectName)
			if err != nil {
				return errors.WithMessage(err, "could not resolve user and project")
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			if info, err := file.Stat(); err == nil && info.Size() > importer.MaxFileSize {
				return errors.Errorf("%s is larger than %d bytes", args[0], importer.MaxFileSize)
			}

			baseURL := b.cfg.UIBaseURL
			rs, err := importer.New(b.reporter).Import(ctx, user, project, args[0], file, launchName, baseURL)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"project": project.Name, "file": args[0]}).Info(rs.Message)
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&login, "user", "", "Login the launch is reported as")
	cmd.Flags().StringVar(&projectName, "project", "", "Project the launch is reported to")
	cmd.Flags().StringVar(&launchName, "launch-name", "", "Launch name, defaults to the file name")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
