package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/flags"
)

func NewTokenCommand() *cobra.Command {
	dbFlags := flags.NewPostgresDatabaseFlags("")
	authFlags := flags.NewAuthFlags()
	var login string

	cmd := &cobra.Command{
		Use:              "token",
		Short:            "Issue an access token for a user",
		PersistentPreRun: NoPrintVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbc, err := dbFlags.GetDBClient()
			if err != nil {
				return errors.WithMessage(err, "couldn't get DB client")
			}
			user, err := query.UserByLogin(dbc.DB.WithContext(cmd.Context()), login)
			if err != nil {
				return err
			}
			if user == nil {
				return errors.Errorf("user %s not found", login)
			}

			signingKey, err := authFlags.GetSigningKey()
			if err != nil {
				return err
			}
			token, err := auth.NewAuthenticator(dbc, signingKey).IssueToken(user.Login, authFlags.TokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			return nil
		},
	}

	dbFlags.BindFlags(cmd.Flags())
	authFlags.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&login, "login", "", "Login of the user")
	_ = cmd.MarkFlagRequired("login")
	return cmd
}
