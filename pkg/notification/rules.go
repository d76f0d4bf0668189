// Package notification e-mails launch results to the recipients of project rules.
package notification

import (
	"context"
	"net/mail"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// Send cases decide whether a finished launch triggers a rule.
const (
	SendAlways        = "ALWAYS"
	SendFailed        = "FAILED"
	SendToInvestigate = "TO_INVESTIGATE"
	SendMore10        = "MORE_10"
	SendMore20        = "MORE_20"
	SendMore50        = "MORE_50"

	// RecipientOwner stands for the user who started the launch.
	RecipientOwner = "OWNER"

	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

var sendCases = map[string]bool{
	SendAlways: true, SendFailed: true, SendToInvestigate: true, SendMore10: true, SendMore20: true, SendMore50: true,
}

var loginPattern = regexp.MustCompile(`^[0-9a-zA-Z-_.]{1,128}$`)

func validRecipient(r string) bool {
	if r == RecipientOwner {
		return true
	}
	if strings.Contains(r, "@") {
		addr, err := mail.ParseAddress(r)
		return err == nil && addr.Address == r
	}
	return loginPattern.MatchString(r)
}

// ValidateRules checks the rules of a project. Rule names are unique and every rule has at
// least one recipient, each being OWNER, a login or an e-mail address.
func ValidateRules(cases []apitype.SenderCaseDTO) error {
	names := map[string]bool{}
	for i, c := range cases {
		name := strings.TrimSpace(c.RuleName)
		if name == "" {
			return rperrors.New(rperrors.BadRequest, "Rule name must not be empty.")
		}
		if names[strings.ToLower(name)] {
			return rperrors.New(rperrors.ResourceAlreadyExists, "Rule '"+name+"'")
		}
		names[strings.ToLower(name)] = true

		if !sendCases[strings.ToUpper(c.SendCase)] {
			return rperrors.New(rperrors.BadRequest, "Unknown send case '"+c.SendCase+"' of rule '"+name+"'.")
		}
		if len(c.Recipients) == 0 {
			return rperrors.New(rperrors.BadRequest, "Rule '"+name+"' has no recipients.")
		}
		for _, r := range c.Recipients {
			if !validRecipient(strings.TrimSpace(r)) {
				return rperrors.New(rperrors.BadRequest, "Recipient '"+r+"' of rule '"+name+"' is not valid.")
			}
		}
		for _, n := range c.LaunchNames {
			if strings.TrimSpace(n) == "" {
				return rperrors.New(rperrors.BadRequest, "Launch names of rule '"+name+"' must not be empty.")
			}
		}
		switch strings.ToUpper(c.AttributesOperator) {
		case "", OperatorAnd, OperatorOr:
		default:
			return rperrors.New(rperrors.BadRequest, "Unknown attributes operator '"+c.AttributesOperator+"'.")
		}
		cases[i].RuleName = name
	}
	return nil
}

// Manager stores the notification configuration of projects.
type Manager struct {
	dbc *db.DB
}

func NewManager(dbc *db.DB) *Manager {
	return &Manager{dbc: dbc}
}

// UpdateConfig replaces the rules of a project and switches notifications on or off.
func (m *Manager) UpdateConfig(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.ProjectNotificationConfig) (*apitype.ProjectNotificationConfig, error) {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return nil, err
	}
	if err := ValidateRules(rq.Cases); err != nil {
		return nil, err
	}
	var saved []models.SenderCase
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Where("project_id = ?", project.ID).Delete(&models.SenderCase{}); res.Error != nil {
			return res.Error
		}
		for _, c := range rq.Cases {
			sc := models.SenderCase{
				ProjectID:          project.ID,
				RuleName:           c.RuleName,
				Recipients:         pq.StringArray(trimAll(c.Recipients)),
				SendCase:           strings.ToUpper(c.SendCase),
				LaunchNames:        pq.StringArray(trimAll(c.LaunchNames)),
				AttributesOperator: strings.ToUpper(c.AttributesOperator),
				Enabled:            c.Enabled,
			}
			attrs, err := models.ToJSONB(c.Attributes)
			if err != nil {
				return err
			}
			sc.Attributes = attrs
			if res := tx.Create(&sc); res.Error != nil {
				return res.Error
			}
			saved = append(saved, sc)
		}
		enabled := "false"
		if rq.Enabled {
			enabled = "true"
		}
		return tx.Save(&models.ProjectAttribute{ProjectID: project.ID, Key: db.AttrNotifications, Value: enabled}).Error
	})
	if err != nil {
		return nil, err
	}
	res := &apitype.ProjectNotificationConfig{Enabled: rq.Enabled, Cases: make([]apitype.SenderCaseDTO, 0, len(saved))}
	for _, sc := range saved {
		res.Cases = append(res.Cases, api.SenderCaseDTO(sc))
	}
	return res, nil
}

func trimAll(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}

// launchInfo is what rules are matched against.
type launchInfo struct {
	name       string
	status     string
	counters   map[string]int
	attributes []models.ItemAttribute
}

// defectShare is the percentage of executions carrying a to investigate, product bug,
// automation bug or system issue defect.
func defectShare(counters map[string]int) float64 {
	total := counters[apitype.ExecutionsTotal]
	if total == 0 {
		return 0
	}
	defects := 0
	for _, g := range []apitype.IssueGroup{
		apitype.IssueGroupToInvestigate, apitype.IssueGroupProductBug,
		apitype.IssueGroupAutomationBug, apitype.IssueGroupSystemIssue,
	} {
		defects += counters[apitype.DefectTotalField(g)]
	}
	return float64(defects) * 100 / float64(total)
}

func sendCaseMatches(sendCase string, l launchInfo) bool {
	switch sendCase {
	case SendAlways:
		return true
	case SendFailed:
		return l.status == string(apitype.StatusFailed) || l.counters[apitype.ExecutionsFailed] > 0
	case SendToInvestigate:
		return l.counters[apitype.DefectTotalField(apitype.IssueGroupToInvestigate)] > 0
	case SendMore10:
		return defectShare(l.counters) > 10
	case SendMore20:
		return defectShare(l.counters) > 20
	case SendMore50:
		return defectShare(l.counters) > 50
	}
	return false
}

func hasAttribute(attrs []models.ItemAttribute, want apitype.ItemAttributeResource) bool {
	for _, a := range attrs {
		if a.System {
			continue
		}
		if (want.Key == "" || a.Key == want.Key) && a.Value == want.Value {
			return true
		}
	}
	return false
}

// matches reports whether a rule applies to a launch. Empty launch names or attributes match
// every launch.
func matches(sc models.SenderCase, l launchInfo) bool {
	if !sc.Enabled || !sendCaseMatches(sc.SendCase, l) {
		return false
	}
	if len(sc.LaunchNames) > 0 {
		found := false
		for _, n := range sc.LaunchNames {
			if n == l.name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	var attrs []apitype.ItemAttributeResource
	_ = models.FromJSONB(sc.Attributes, &attrs)
	if len(attrs) == 0 {
		return true
	}
	if sc.AttributesOperator == OperatorOr {
		for _, a := range attrs {
			if hasAttribute(l.attributes, a) {
				return true
			}
		}
		return false
	}
	for _, a := range attrs {
		if !hasAttribute(l.attributes, a) {
			return false
		}
	}
	return true
}

// recipients resolves OWNER and logins to e-mail addresses, without duplicates.
func recipients(dbc *gorm.DB, sc models.SenderCase, owner string) ([]string, error) {
	seen := map[string]bool{}
	var result []string
	add := func(addr string) {
		addr = strings.ToLower(addr)
		if addr != "" && !seen[addr] {
			seen[addr] = true
			result = append(result, addr)
		}
	}
	var logins []string
	for _, r := range sc.Recipients {
		switch {
		case r == RecipientOwner:
			add(owner)
		case strings.Contains(r, "@"):
			add(r)
		default:
			logins = append(logins, strings.ToLower(r))
		}
	}
	if len(logins) > 0 {
		var emails []string
		if res := dbc.Model(&models.User{}).Where("login IN ?", logins).Order("login").Pluck("email", &emails); res.Error != nil {
			return nil, res.Error
		}
		for _, e := range emails {
			add(e)
		}
	}
	return result, nil
}

func launchLink(baseURL, project string, launchID uint) string {
	if baseURL == "" {
		return ""
	}
	return reporting.LaunchLink(baseURL, project, launchID)
}
