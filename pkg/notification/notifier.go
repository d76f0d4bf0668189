package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"sync"

	"github.com/jordan-wright/email"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/bts"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/events"
)

// SMTPConfig is the mail server used when a project has no e-mail integration.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
}

func (c SMTPConfig) configured() bool {
	return c.Host != "" && c.Port > 0
}

// Sender delivers a composed e-mail.
type Sender interface {
	Send(cfg SMTPConfig, e *email.Email) error
}

type smtpSender struct{}

func (smtpSender) Send(cfg SMTPConfig, e *email.Email) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	var a smtp.Auth
	if cfg.Username != "" {
		a = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	if cfg.SSL {
		return e.SendWithTLS(addr, a, &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
	}
	return e.Send(addr, a)
}

// Notifier sends the e-mails of matching rules when a launch finishes.
type Notifier struct {
	dbc     *db.DB
	smtp    SMTPConfig
	baseURL string
	sender  Sender

	wg sync.WaitGroup
}

func NewNotifier(dbc *db.DB, smtpConfig SMTPConfig, baseURL string) *Notifier {
	return &Notifier{dbc: dbc, smtp: smtpConfig, baseURL: baseURL, sender: smtpSender{}}
}

// Subscribe sends notifications of finished launches in the background, so finishing a
// launch never waits on the mail server.
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.LaunchFinished, n.onLaunchFinished)
}

// Wait blocks until notifications being sent are done.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) onLaunchFinished(ctx context.Context, e events.Event) error {
	if e.Launch == nil {
		return nil
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.notify(context.WithoutCancel(ctx), e); err != nil {
			log.WithError(err).WithField("launch", e.Launch.ID).Error("could not send launch notifications")
		}
	}()
	return nil
}

// smtpConfig prefers the enabled e-mail integration of the project over the global server.
func (n *Notifier) smtpConfig(ctx context.Context, projectID uint) (SMTPConfig, error) {
	integration, err := bts.EnabledIntegration(n.dbc.DB.WithContext(ctx), projectID, models.IntegrationTypeEmail)
	if err != nil || integration == nil {
		return n.smtp, err
	}
	var p bts.EmailParams
	if err := models.FromJSONB(integration.Params, &p); err != nil {
		return n.smtp, errors.WithStack(err)
	}
	cfg := SMTPConfig{Host: p.Host, Port: p.Port, Username: p.Username, Password: p.Password, From: p.From, SSL: p.SSL}
	if cfg.From == "" {
		cfg.From = n.smtp.From
	}
	return cfg, nil
}

func (n *Notifier) notify(ctx context.Context, e events.Event) error {
	dbc := n.dbc.DB.WithContext(ctx)
	var project models.Project
	res := dbc.Preload("Attributes").Preload("SenderCases").Where("id = ?", e.ProjectID).Limit(1).Find(&project)
	if res.Error != nil || res.RowsAffected == 0 {
		return res.Error
	}
	if project.Attribute(db.AttrNotifications) != "true" || len(project.SenderCases) == 0 {
		return nil
	}

	var launch models.Launch
	res = dbc.Preload("User").Preload("Attributes").Where("id = ?", e.Launch.ID).Limit(1).Find(&launch)
	if res.Error != nil || res.RowsAffected == 0 {
		return res.Error
	}
	stats, err := query.LaunchStatistics(dbc, launch.ID)
	if err != nil {
		return err
	}
	counters := stats[launch.ID]
	info := launchInfo{name: launch.Name, status: launch.Status, counters: counters, attributes: launch.Attributes}

	cfg, err := n.smtpConfig(ctx, project.ID)
	if err != nil {
		return err
	}
	if !cfg.configured() {
		log.WithField("project", project.Name).Warn("notifications are enabled but no mail server is configured")
		return nil
	}

	baseURL := e.BaseURL
	if baseURL == "" {
		baseURL = n.baseURL
	}
	for _, sc := range project.SenderCases {
		if !matches(sc, info) {
			continue
		}
		to, err := recipients(dbc, sc, launch.User.Email)
		if err != nil {
			return err
		}
		if len(to) == 0 {
			continue
		}
		msg, err := compose(cfg.From, to, project.Name, &launch, counters, launchLink(baseURL, project.Name, launch.ID))
		if err != nil {
			return err
		}
		if err := n.sender.Send(cfg, msg); err != nil {
			log.WithError(err).WithFields(log.Fields{"rule": sc.RuleName, "launch": launch.ID}).Error("could not send notification")
			continue
		}
		log.WithFields(log.Fields{"rule": sc.RuleName, "launch": launch.ID, "recipients": len(to)}).Info("notification sent")
	}
	return nil
}

var launchTemplate = template.Must(template.New("launch").Parse(`<html><body>
<h2>Launch "{{.Name}}" #{{.Number}} has been finished</h2>
{{if .Link}}<p><a href="{{.Link}}">Open the launch in ReportPortal</a></p>{{end}}
<table>
<tr><td>Status</td><td>{{.Status}}</td></tr>
<tr><td>Total</td><td>{{.Total}}</td></tr>
<tr><td>Passed</td><td>{{.Passed}}</td></tr>
<tr><td>Failed</td><td>{{.Failed}}</td></tr>
<tr><td>Skipped</td><td>{{.Skipped}}</td></tr>
{{range .Defects}}<tr><td>{{.Name}}</td><td>{{.Count}}</td></tr>
{{end}}</table>
</body></html>`))

type defectRow struct {
	Name  string
	Count int
}

func compose(from string, to []string, project string, launch *models.Launch, counters map[string]int, link string) (*email.Email, error) {
	data := struct {
		Name, Status, Link             string
		Number                         int64
		Total, Passed, Failed, Skipped int
		Defects                        []defectRow
	}{
		Name:    launch.Name,
		Status:  launch.Status,
		Link:    link,
		Number:  launch.Number,
		Total:   counters[apitype.ExecutionsTotal],
		Passed:  counters[apitype.ExecutionsPassed],
		Failed:  counters[apitype.ExecutionsFailed],
		Skipped: counters[apitype.ExecutionsSkipped],
	}
	for _, g := range apitype.IssueGroups {
		data.Defects = append(data.Defects, defectRow{Name: string(g), Count: counters[apitype.DefectTotalField(g)]})
	}
	var body bytes.Buffer
	if err := launchTemplate.Execute(&body, data); err != nil {
		return nil, errors.WithStack(err)
	}
	e := email.NewEmail()
	e.From = from
	e.To = to
	e.Subject = fmt.Sprintf("Report Portal Notification: [%s] launch '%s' #%d finished", project, launch.Name, launch.Number)
	e.HTML = body.Bytes()
	return e, nil
}
