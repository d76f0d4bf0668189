package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/reportportal/service-api/pkg/analyzer"
	"github.com/reportportal/service-api/pkg/api/dashboards"
	"github.com/reportportal/service-api/pkg/api/filters"
	"github.com/reportportal/service-api/pkg/api/items"
	"github.com/reportportal/service-api/pkg/api/launches"
	"github.com/reportportal/service-api/pkg/api/logs"
	"github.com/reportportal/service-api/pkg/api/projects"
	"github.com/reportportal/service-api/pkg/api/users"
	"github.com/reportportal/service-api/pkg/api/widgets"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/bts"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/flags"
	"github.com/reportportal/service-api/pkg/importer"
	"github.com/reportportal/service-api/pkg/messaging"
	"github.com/reportportal/service-api/pkg/notification"
	"github.com/reportportal/service-api/pkg/rpserver"
	"github.com/reportportal/service-api/pkg/rpserver/metrics"
	"github.com/reportportal/service-api/pkg/widget"
)

type ServerFlags struct {
	BackendFlags *BackendFlags
	APIFlags     *flags.APIFlags
	AuthFlags    *flags.AuthFlags
	CacheFlags   *flags.CacheFlags
	AMQPFlags    *flags.AMQPFlags
	JiraFlags    *flags.JiraFlags
	EmailFlags   *flags.EmailFlags
}

func NewServerFlags() *ServerFlags {
	return &ServerFlags{
		BackendFlags: NewBackendFlags(),
		APIFlags:     flags.NewAPIFlags(),
		AuthFlags:    flags.NewAuthFlags(),
		CacheFlags:   flags.NewCacheFlags(),
		AMQPFlags:    flags.NewAMQPFlags(),
		JiraFlags:    flags.NewJiraFlags(),
		EmailFlags:   flags.NewEmailFlags(),
	}
}

func (f *ServerFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.BackendFlags.BindFlags(flagSet)
	f.APIFlags.BindFlags(flagSet)
	f.AuthFlags.BindFlags(flagSet)
	f.CacheFlags.BindFlags(flagSet)
	f.AMQPFlags.BindFlags(flagSet)
	f.JiraFlags.BindFlags(flagSet)
	f.EmailFlags.BindFlags(flagSet)
}

func NewServeCommand() *cobra.Command {
	f := NewServerFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, the reporting consumers and the scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			b, err := f.BackendFlags.build(ctx)
			if err != nil {
				return err
			}

			// Make sure the db is initialized, otherwise let the user know:
			if res := b.dbc.DB.Limit(1).Find(&[]models.User{}); res.Error != nil {
				return errors.WithMessage(res.Error, "error querying users, database may need to be initialized with the migrate command")
			}

			signingKey, err := f.AuthFlags.GetSigningKey()
			if err != nil {
				return err
			}
			authenticator := auth.NewAuthenticator(b.dbc, signingKey)

			cacheClient, err := f.CacheFlags.GetCacheClient()
			if err != nil {
				return errors.WithMessage(err, "couldn't get cache client")
			}
			cacheTTL := b.cfg.Widgets.CacheTTL
			if f.CacheFlags.TTL > 0 {
				cacheTTL = f.CacheFlags.TTL
			}

			uiBaseURL := b.cfg.UIBaseURL
			if f.APIFlags.UIBaseURL != "" {
				uiBaseURL = f.APIFlags.UIBaseURL
			}

			var (
				capabilities []string
				processes    []rpserver.DaemonProcess
				exitErr      error
				exitOnce     sync.Once
			)
			// a failing background process stops the whole service
			fail := func(err error) {
				exitOnce.Do(func() {
					exitErr = err
					cancel()
				})
			}

			managers := rpserver.Managers{
				Reporting: b.reporter,
				Importer:  importer.New(b.reporter),
			}

			var analyzerService *analyzer.Service
			if f.AMQPFlags.Enabled() {
				conn, err := f.AMQPFlags.Dial()
				if err != nil {
					return err
				}
				defer conn.Close()

				publisher, err := messaging.NewPublisher(conn)
				if err != nil {
					return err
				}
				managers.Publisher = publisher
				messaging.NewActivityPublisher(publisher).Subscribe(b.bus)

				consumer := messaging.NewReportingConsumer(conn, b.reporter, messaging.DBPrincipalResolver(b.dbc),
					f.AMQPFlags.ConsumerOptions())
				processes = append(processes, rpserver.DaemonFunc{Name: "reporting-consumer", Fn: consumer.Run, OnExit: fail})

				client, err := analyzer.NewClient(conn, b.cfg.Analyzer)
				if err != nil {
					return errors.WithMessage(err, "invalid analyzer configuration")
				}
				analyzerService = analyzer.NewService(b.dbc, client, b.bus, b.recorder)
				analyzerService.Subscribe(b.bus)
				managers.Analyzer = analyzerService
				managers.Analyzers = client
				capabilities = append(capabilities, rpserver.AsyncReportingCapability, rpserver.AnalyzerCapability)
			} else {
				log.Warn("no amqp broker configured, asynchronous reporting and analyzers are disabled")
			}
			if b.index != nil {
				capabilities = append(capabilities, rpserver.LogIndexCapability)
			}
			if cacheClient != nil {
				capabilities = append(capabilities, rpserver.CacheCapability)
			}

			smtpConfig := f.EmailFlags.SMTPConfig(b.cfg.Notifications.From)
			notifier := notification.NewNotifier(b.dbc, smtpConfig, uiBaseURL)
			notifier.Subscribe(b.bus)
			if f.EmailFlags.Host != "" {
				capabilities = append(capabilities, rpserver.EmailCapability)
			}

			var launchAnalyzer launches.Analyzer
			if analyzerService != nil {
				launchAnalyzer = analyzerService
			}
			var logIndex logs.Index
			var projectCleaner projects.Cleaner
			if b.index != nil {
				logIndex = b.index
				projectCleaner = b.index
			}

			managers.Launches = launches.NewManager(b.dbc, b.bus, b.store, b.recorder, launchAnalyzer)
			managers.Items = items.NewManager(b.dbc, b.bus, b.store, b.recorder)
			managers.Logs = logs.NewManager(b.dbc, b.store, logIndex)
			managers.Projects = projects.NewManager(b.dbc, b.store, projectCleaner, b.recorder, b.cfg.ProjectDefaults)
			managers.Users = users.NewManager(b.dbc, b.cfg.ProjectDefaults)
			managers.Filters = filters.NewManager(b.dbc, b.recorder)
			managers.Dashboards = dashboards.NewManager(b.dbc, b.recorder)
			managers.Widgets = widgets.NewManager(b.dbc, b.recorder, widget.NewProvider(b.dbc, cacheClient, cacheTTL))
			managers.Integrations = bts.NewManager(b.dbc, b.recorder, f.JiraFlags.GetHTTPClient())
			managers.Notifications = notification.NewManager(b.dbc)

			scheduler, err := b.scheduler()
			if err != nil {
				return err
			}
			processes = append(processes, scheduler)

			if f.APIFlags.MetricsAddr != "" {
				processes = append(processes, &metrics.Refresher{DB: b.dbc.DB, Interval: f.APIFlags.MetricsInterval})

				// Serve our metrics endpoint for prometheus to scrape
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsServer := &http.Server{Addr: f.APIFlags.MetricsAddr, Handler: mux, ReadHeaderTimeout: 30 * time.Second}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						fail(errors.Wrap(err, "metrics server exited"))
					}
				}()
				defer metricsServer.Close()
			}

			server := rpserver.NewServer(f.APIFlags.ListenAddr, b.dbc, authenticator, managers, uiBaseURL,
				f.AuthFlags.TokenTTL, capabilities)

			daemonsDone := make(chan struct{})
			go func() {
				defer close(daemonsDone)
				rpserver.NewDaemonServer(processes).Serve(ctx)
			}()

			err = server.Serve(ctx)
			cancel()
			<-daemonsDone
			if analyzerService != nil {
				analyzerService.Wait()
			}
			notifier.Wait()
			if err != nil {
				return err
			}
			return exitErr
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
