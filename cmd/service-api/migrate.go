package main

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/reportportal/service-api/pkg/api/users"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/flags"
	"github.com/reportportal/service-api/pkg/flags/configflags"
)

func NewMigrateCommand() *cobra.Command {
	f := flags.NewPostgresDatabaseFlags("")
	configFlags := configflags.NewConfigFlags()
	admin := apitype.CreateUserRQ{
		Login:    "superadmin",
		Email:    "superadmin@reportportal.internal",
		FullName: "ReportPortal Administrator",
		Password: os.Getenv("RP_INITIAL_ADMIN_PASSWORD"),
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrates or initializes the PostgreSQL database to the latest schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbc, err := f.GetDBClient()
			if err != nil {
				return errors.WithMessage(err, "could not connect to db")
			}

			if err := dbc.UpdateSchema(); err != nil {
				return errors.WithMessage(err, "could not migrate db")
			}

			if admin.Password == "" {
				return nil
			}
			cfg, err := configFlags.GetConfig()
			if err != nil {
				return err
			}
			created, err := users.NewManager(dbc, cfg.ProjectDefaults).EnsureAdmin(cmd.Context(), admin)
			if err != nil {
				return errors.WithMessage(err, "could not create administrator")
			}
			if created {
				log.WithField("login", admin.Login).Info("created initial administrator")
			}
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	configFlags.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&admin.Login, "admin-login", admin.Login, "Login of the administrator created when none exists")
	cmd.Flags().StringVar(&admin.Email, "admin-email", admin.Email, "Email of the administrator created when none exists")
	cmd.Flags().StringVar(&admin.Password, "admin-password", admin.Password,
		"Password of the administrator created when none exists; no administrator is created when empty (env RP_INITIAL_ADMIN_PASSWORD)")
	return cmd
}
