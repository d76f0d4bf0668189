package api

import (
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
)

// AttributeResources converts stored attributes, hiding system attributes unless asked.
func AttributeResources(attrs []models.ItemAttribute, withSystem bool) []apitype.ItemAttributeResource {
	result := make([]apitype.ItemAttributeResource, 0, len(attrs))
	for _, a := range attrs {
		if a.System && !withSystem {
			continue
		}
		result = append(result, apitype.ItemAttributeResource{Key: a.Key, Value: a.Value, System: a.System})
	}
	return result
}

func LaunchResource(l models.Launch, counters map[string]int) apitype.LaunchResource {
	return apitype.LaunchResource{
		ID:                  l.ID,
		UUID:                l.UUID,
		Name:                l.Name,
		Number:              l.Number,
		Description:         l.Description,
		StartTime:           apitype.NewTime(l.StartTime),
		EndTime:             apitype.TimePtr(l.EndTime),
		LastModified:        apitype.NewTime(l.UpdatedAt),
		Status:              apitype.Status(l.Status),
		Mode:                apitype.LaunchMode(l.Mode),
		Owner:               l.User.Login,
		Attributes:          AttributeResources(l.Attributes, false),
		Statistics:          apitype.NewStatisticsResource(counters),
		ApproximateDuration: l.ApproximateDuration,
		HasRetries:          l.HasRetries,
		Rerun:               l.Rerun,
		Analysing:           []string{},
	}
}

func IssueResource(issue *models.Issue) *apitype.Issue {
	if issue == nil {
		return nil
	}
	res := &apitype.Issue{
		IssueType:      issue.IssueType.Locator,
		Comment:        issue.Comment,
		AutoAnalyzed:   issue.AutoAnalyzed,
		IgnoreAnalyzer: issue.IgnoreAnalyzer,
	}
	for _, t := range issue.Tickets {
		submitted := apitype.NewTime(t.SubmitDate)
		res.ExternalSystemIssues = append(res.ExternalSystemIssues, apitype.ExternalSystemIssue{
			TicketID:   t.TicketID,
			URL:        t.URL,
			BtsURL:     t.BtsURL,
			BtsProject: t.BtsProject,
			SubmitDate: &submitted,
			PluginName: t.PluginName,
		})
	}
	return res
}

func TestItemResource(item models.TestItem, counters map[string]int) apitype.TestItemResource {
	res := apitype.TestItemResource{
		ID:           item.ID,
		UUID:         item.UUID,
		Name:         item.Name,
		CodeRef:      item.CodeRef,
		Description:  item.Description,
		Attributes:   AttributeResources(item.Attributes, false),
		Type:         apitype.ItemType(item.Type),
		StartTime:    apitype.NewTime(item.StartTime),
		EndTime:      apitype.TimePtr(item.EndTime),
		Status:       apitype.Status(item.Status),
		Statistics:   apitype.NewStatisticsResource(counters),
		Parent:       item.ParentID,
		Issue:        IssueResource(item.Issue),
		HasChildren:  item.HasChildren,
		HasStats:     item.HasStats,
		LaunchID:     item.LaunchID,
		UniqueID:     item.UniqueID,
		TestCaseID:   item.TestCaseID,
		TestCaseHash: item.TestCaseHash,
		Path:         item.Path,
		LastModified: apitype.NewTime(item.UpdatedAt),
	}
	for _, p := range item.Parameters {
		res.Parameters = append(res.Parameters, apitype.ParameterResource{Key: p.Key, Value: p.Value})
	}
	return res
}

func LogResource(l models.Log) apitype.LogResource {
	res := apitype.LogResource{
		ID:       l.ID,
		UUID:     l.UUID,
		Time:     apitype.NewTime(l.LogTime),
		Message:  l.Message,
		Level:    apitype.LogLevelFromInt(l.Level),
		ItemID:   l.ItemID,
		LaunchID: l.LaunchID,
	}
	if l.Attachment != nil {
		res.BinaryContent = &apitype.BinaryContent{
			ID:          l.Attachment.FileID,
			ContentType: l.Attachment.ContentType,
		}
	}
	return res
}

func ActivityResource(a models.Activity) apitype.ActivityResource {
	res := apitype.ActivityResource{
		ID:         a.ID,
		CreatedAt:  apitype.NewTime(a.CreatedAt),
		User:       a.Username,
		ProjectID:  a.ProjectID,
		Action:     a.Action,
		ObjectType: a.ObjectType,
		ObjectID:   a.ObjectID,
		ObjectName: a.ObjectName,
	}
	_ = models.FromJSONB(a.Details, &res.Details)
	return res
}

func UserFilterResource(f models.UserFilter) apitype.UserFilterResource {
	res := apitype.UserFilterResource{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		ObjectType:  f.TargetType,
		Owner:       f.Owner,
		Share:       f.Shared,
		Conditions:  []apitype.FilterCondition{},
		Orders:      []apitype.FilterOrder{},
	}
	_ = models.FromJSONB(f.Conditions, &res.Conditions)
	_ = models.FromJSONB(f.Orders, &res.Orders)
	return res
}

func IssueSubType(it models.IssueType) apitype.IssueSubType {
	return apitype.IssueSubType{
		ID:        it.ID,
		Locator:   it.Locator,
		TypeRef:   apitype.IssueGroup(it.IssueGroup),
		LongName:  it.LongName,
		ShortName: it.ShortName,
		Color:     it.Color,
	}
}

// SenderCaseDTO converts a stored notification rule.
func SenderCaseDTO(sc models.SenderCase) apitype.SenderCaseDTO {
	dto := apitype.SenderCaseDTO{
		ID:                 sc.ID,
		RuleName:           sc.RuleName,
		Recipients:         sc.Recipients,
		SendCase:           sc.SendCase,
		LaunchNames:        sc.LaunchNames,
		AttributesOperator: sc.AttributesOperator,
		Enabled:            sc.Enabled,
	}
	_ = models.FromJSONB(sc.Attributes, &dto.Attributes)
	return dto
}

// secretParams are integration parameters never sent back to clients.
var secretParams = map[string]bool{"password": true, "token": true, "accessToken": true}

func IntegrationResource(i models.Integration) apitype.IntegrationResource {
	params := map[string]interface{}{}
	_ = models.FromJSONB(i.Params, &params)
	for k := range params {
		if secretParams[k] {
			delete(params, k)
		}
	}
	return apitype.IntegrationResource{
		ID:      i.ID,
		Name:    i.Name,
		Type:    i.Type,
		Enabled: i.Enabled,
		Params:  params,
		Creator: i.Creator,
	}
}
