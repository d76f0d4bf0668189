package bts

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andygrunwald/go-jira"
	log "github.com/sirupsen/logrus"
	"github.com/trivago/tgo/tcontainer"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api/activities"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const (
	defaultLogQuantity = 50
	defaultIssueType   = "Bug"
)

type bearerAuthTransport struct {
	Token     string
	Transport http.RoundTripper
}

func (bat *bearerAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+bat.Token)
	return bat.transport().RoundTrip(req)
}

func (bat *bearerAuthTransport) transport() http.RoundTripper {
	if bat.Transport != nil {
		return bat.Transport
	}
	return http.DefaultTransport
}

// newJiraClient builds a client authenticating the way the integration is configured. The
// base transport and timeout come from httpClient.
func newJiraClient(p JiraParams, httpClient *http.Client) (*jira.Client, error) {
	base := httpClient.Transport
	var client *http.Client
	switch p.AuthType {
	case AuthBearer:
		client = &http.Client{Transport: &bearerAuthTransport{Token: p.Token, Transport: base}}
	default:
		tp := jira.BasicAuthTransport{Username: p.Username, Password: p.Password, Transport: base}
		client = tp.Client()
	}
	client.Timeout = httpClient.Timeout
	c, err := jira.NewClient(client, p.URL)
	if err != nil {
		return nil, rperrors.New(rperrors.UnableInteractWithIntegr, err.Error())
	}
	return c, nil
}

func (m *Manager) jiraIntegration(dbc *gorm.DB, projectID, id uint) (*models.Integration, JiraParams, error) {
	integration, err := FindIntegration(dbc, projectID, id)
	if err != nil {
		return nil, JiraParams{}, err
	}
	if integration.Type != models.IntegrationTypeJira {
		return nil, JiraParams{}, rperrors.New(rperrors.UnableInteractWithIntegr,
			fmt.Sprintf("Integration '%s' is not a jira integration.", integration.Name))
	}
	if !integration.Enabled {
		return nil, JiraParams{}, rperrors.New(rperrors.UnableInteractWithIntegr,
			fmt.Sprintf("Integration '%s' is disabled.", integration.Name))
	}
	var p JiraParams
	if err := models.FromJSONB(integration.Params, &p); err != nil {
		return nil, JiraParams{}, rperrors.New(rperrors.UnableInteractWithIntegr, err.Error())
	}
	p.AuthType = strings.ToUpper(p.AuthType)
	return integration, p, nil
}

// jiraError turns a failed jira call into a readable message, including the error body sent
// by jira when there is one.
func jiraError(resp *jira.Response, err error) string {
	return jira.NewJiraError(resp, err).Error()
}

func ticketURL(jiraURL, key string) string {
	return strings.TrimSuffix(jiraURL, "/") + "/browse/" + key
}

func ticketResource(p JiraParams, issue *jira.Issue) apitype.TicketResource {
	res := apitype.TicketResource{ID: issue.Key, URL: ticketURL(p.URL, issue.Key)}
	if issue.Fields != nil {
		res.Summary = issue.Fields.Summary
		if issue.Fields.Status != nil {
			res.Status = issue.Fields.Status.Name
		}
	}
	return res
}

// TestConnection checks the integration can read its jira project.
func (m *Manager) TestConnection(ctx context.Context, project *auth.ProjectDetails, id uint) error {
	_, p, err := m.jiraIntegration(m.dbc.DB.WithContext(ctx), project.ID, id)
	if err != nil {
		return err
	}
	return testConnection(ctx, p, m.httpClient)
}

func testConnection(ctx context.Context, p JiraParams, httpClient *http.Client) error {
	c, err := newJiraClient(p, httpClient)
	if err != nil {
		return err
	}
	if _, resp, err := c.Project.GetWithContext(ctx, p.Project); err != nil {
		return rperrors.New(rperrors.UnableInteractWithIntegr, jiraError(resp, err))
	}
	return nil
}

// GetTicket reads a ticket from the jira of the integration.
func (m *Manager) GetTicket(ctx context.Context, project *auth.ProjectDetails, id uint, key string) (*apitype.TicketResource, error) {
	_, p, err := m.jiraIntegration(m.dbc.DB.WithContext(ctx), project.ID, id)
	if err != nil {
		return nil, err
	}
	return getTicket(ctx, p, m.httpClient, key)
}

func getTicket(ctx context.Context, p JiraParams, httpClient *http.Client, key string) (*apitype.TicketResource, error) {
	c, err := newJiraClient(p, httpClient)
	if err != nil {
		return nil, err
	}
	issue, resp, err := c.Issue.GetWithContext(ctx, key, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, rperrors.New(rperrors.TicketNotFound, key)
		}
		return nil, rperrors.New(rperrors.UnableInteractWithIntegr, jiraError(resp, err))
	}
	res := ticketResource(p, issue)
	return &res, nil
}

// IssueTypes lists the issue type names of the jira project.
func (m *Manager) IssueTypes(ctx context.Context, project *auth.ProjectDetails, id uint) ([]string, error) {
	_, p, err := m.jiraIntegration(m.dbc.DB.WithContext(ctx), project.ID, id)
	if err != nil {
		return nil, err
	}
	c, err := newJiraClient(p, m.httpClient)
	if err != nil {
		return nil, err
	}
	jp, resp, err := c.Project.GetWithContext(ctx, p.Project)
	if err != nil {
		return nil, rperrors.New(rperrors.UnableInteractWithIntegr, jiraError(resp, err))
	}
	names := make([]string, 0, len(jp.IssueTypes))
	for _, t := range jp.IssueTypes {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names, nil
}

// backLink is an item referenced by a ticket, with what the description shows of it.
type backLink struct {
	url     string
	comment string
	logs    []string
}

func fieldValue(f apitype.PostFormField) string {
	return strings.Join(f.Value, " ")
}

// buildIssue maps the form fields to a jira issue. Known fields go to their typed
// counterparts, anything else is sent as is.
func buildIssue(p JiraParams, rq apitype.PostTicketRQ, links []backLink) (*jira.Issue, error) {
	fields := &jira.IssueFields{
		Project:  jira.Project{Key: p.Project},
		Type:     jira.IssueType{Name: defaultIssueType},
		Unknowns: tcontainer.NewMarshalMap(),
	}
	var description string
	for _, f := range rq.Fields {
		if f.IsRequired && len(f.Value) == 0 {
			return nil, rperrors.New(rperrors.UnablePostTicket, "Field '"+f.FieldName+"' is required.")
		}
		if len(f.Value) == 0 {
			continue
		}
		switch f.ID {
		case "summary":
			fields.Summary = fieldValue(f)
		case "description":
			description = fieldValue(f)
		case "issuetype":
			fields.Type = jira.IssueType{Name: f.Value[0]}
		case "priority":
			fields.Priority = &jira.Priority{Name: f.Value[0]}
		case "labels":
			fields.Labels = append(fields.Labels, f.Value...)
		case "components":
			for _, c := range f.Value {
				fields.Components = append(fields.Components, &jira.Component{Name: c})
			}
		case "assignee":
			fields.Assignee = &jira.User{Name: f.Value[0]}
		default:
			if strings.EqualFold(f.FieldType, "array") {
				fields.Unknowns[f.ID] = f.Value
			} else {
				fields.Unknowns[f.ID] = fieldValue(f)
			}
		}
	}
	if strings.TrimSpace(fields.Summary) == "" {
		return nil, rperrors.New(rperrors.UnablePostTicket, "Summary is required.")
	}
	fields.Description = describe(description, rq, links)
	return &jira.Issue{Fields: fields}, nil
}

// describe renders the ticket description in jira wiki markup.
func describe(description string, rq apitype.PostTicketRQ, links []backLink) string {
	var b strings.Builder
	if description != "" {
		b.WriteString(description)
		b.WriteString("\n")
	}
	for _, l := range links {
		b.WriteString("h3.*Back link to Report Portal:*\n")
		fmt.Fprintf(&b, "[Link to defect|%s]\n", l.url)
		if rq.IncludeComments && l.comment != "" {
			b.WriteString("h3.*Test Item comments:*\n")
			b.WriteString(l.comment)
			b.WriteString("\n")
		}
		if rq.IncludeLogs && len(l.logs) > 0 {
			b.WriteString("h3.*Test execution log:*\n{noformat}\n")
			b.WriteString(strings.Join(l.logs, "\n"))
			b.WriteString("\n{noformat}\n")
		}
	}
	return b.String()
}

func (m *Manager) backLinks(dbc *gorm.DB, projectID uint, rq apitype.PostTicketRQ) ([]uint, []backLink, error) {
	ids := make([]uint, 0, len(rq.BackLinks))
	for id := range rq.BackLinks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	quantity := rq.LogQuantity
	if quantity <= 0 {
		quantity = defaultLogQuantity
	}
	links := make([]backLink, 0, len(ids))
	for _, id := range ids {
		var item models.TestItem
		res := dbc.Preload("Issue").Joins("JOIN launches ON launches.id = test_items.launch_id").
			Where("test_items.id = ? AND launches.project_id = ?", id, projectID).Limit(1).Find(&item)
		if res.Error != nil {
			return nil, nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, nil, rperrors.New(rperrors.TestItemNotFound, strconv.FormatUint(uint64(id), 10))
		}
		l := backLink{url: rq.BackLinks[id]}
		if item.Issue != nil {
			l.comment = item.Issue.Comment
		}
		if rq.IncludeLogs {
			var logs []models.Log
			if res := dbc.Where("item_id = ?", id).Order("log_time DESC").Limit(quantity).Find(&logs); res.Error != nil {
				return nil, nil, res.Error
			}
			for i := len(logs) - 1; i >= 0; i-- {
				l.logs = append(l.logs, fmt.Sprintf("%s %s %s", logs[i].LogTime.UTC().Format(time.RFC3339),
					apitype.LogLevelFromInt(logs[i].Level), logs[i].Message))
			}
		}
		links = append(links, l)
	}
	return ids, links, nil
}

// PostTicket creates a jira issue and links it to the issues of the back-linked items.
func (m *Manager) PostTicket(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	id uint, rq apitype.PostTicketRQ) (*apitype.TicketResource, error) {
	dbc := m.dbc.DB.WithContext(ctx)
	_, p, err := m.jiraIntegration(dbc, project.ID, id)
	if err != nil {
		return nil, err
	}
	if len(rq.BackLinks) == 0 {
		return nil, rperrors.New(rperrors.UnablePostTicket, "At least one back link is required.")
	}
	itemIDs, links, err := m.backLinks(dbc, project.ID, rq)
	if err != nil {
		return nil, err
	}
	issue, err := buildIssue(p, rq, links)
	if err != nil {
		return nil, err
	}
	c, err := newJiraClient(p, m.httpClient)
	if err != nil {
		return nil, err
	}
	created, resp, err := c.Issue.CreateWithContext(ctx, issue)
	if err != nil {
		return nil, rperrors.New(rperrors.UnablePostTicket, jiraError(resp, err))
	}
	log.WithFields(log.Fields{"ticket": created.Key, "project": project.Name}).Info("ticket posted")

	ticket := models.Ticket{
		TicketID:    created.Key,
		URL:         ticketURL(p.URL, created.Key),
		BtsURL:      p.URL,
		BtsProject:  p.Project,
		SubmitterID: user.ID,
		SubmitDate:  time.Now().UTC(),
		PluginName:  models.IntegrationTypeJira,
	}
	err = dbc.Transaction(func(tx *gorm.DB) error {
		skipped, err := query.LinkTickets(tx, itemIDs, []models.Ticket{ticket})
		if len(skipped) > 0 {
			log.WithField("items", skipped).Warn("items without issue were not linked to the ticket")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, itemID := range itemIDs {
		m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionPostIssue, activities.ObjectItem, itemID,
			created.Key, map[string]interface{}{"ticketUrl": ticket.URL})
	}

	if created.Fields == nil {
		created.Fields = issue.Fields
	}
	res := ticketResource(p, created)
	res.Summary = issue.Fields.Summary
	return &res, nil
}
