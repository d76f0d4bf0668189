package api

type LaunchResource struct {
	ID                  uint                    `json:"id"`
	UUID                string                  `json:"uuid"`
	Name                string                  `json:"name"`
	Number              int64                   `json:"number"`
	Description         string                  `json:"description,omitempty"`
	StartTime           Time                    `json:"startTime"`
	EndTime             *Time                   `json:"endTime,omitempty"`
	LastModified        Time                    `json:"lastModified"`
	Status              Status                  `json:"status"`
	Mode                LaunchMode              `json:"mode"`
	Owner               string                  `json:"owner"`
	Attributes          []ItemAttributeResource `json:"attributes"`
	Statistics          StatisticsResource      `json:"statistics"`
	ApproximateDuration float64                 `json:"approximateDuration"`
	HasRetries          bool                    `json:"hasRetries"`
	Rerun               bool                    `json:"rerun"`
	Analysing           []string                `json:"analysing"`
}

// LaunchFilterable wraps a launch resource for in-memory filtering.
type LaunchFilterable LaunchResource

func (l LaunchFilterable) GetFieldType(param string) ColumnType {
	switch param {
	case "name", "description", "status", "mode", "owner", "uuid":
		return ColumnTypeString
	case "number", "id", "approximateDuration":
		return ColumnTypeNumerical
	case "startTime", "endTime":
		return ColumnTypeTimestamp
	case "attributes":
		return ColumnTypeArray
	}
	if _, ok := l.Statistics.Executions[param]; ok {
		return ColumnTypeNumerical
	}
	return ColumnTypeString
}

func (l LaunchFilterable) GetStringValue(param string) (string, error) {
	switch param {
	case "name":
		return l.Name, nil
	case "description":
		return l.Description, nil
	case "status":
		return string(l.Status), nil
	case "mode":
		return string(l.Mode), nil
	case "owner":
		return l.Owner, nil
	case "uuid":
		return l.UUID, nil
	}
	return "", unknownFieldError(param)
}

func (l LaunchFilterable) GetNumericalValue(param string) (float64, error) {
	switch param {
	case "number":
		return float64(l.Number), nil
	case "id":
		return float64(l.ID), nil
	case "approximateDuration":
		return l.ApproximateDuration, nil
	case "startTime":
		return float64(l.StartTime.UnixMilli()), nil
	case "endTime":
		if l.EndTime == nil {
			return 0, nil
		}
		return float64(l.EndTime.UnixMilli()), nil
	}
	if v, ok := l.Statistics.Executions[param]; ok {
		return float64(v), nil
	}
	return 0, unknownFieldError(param)
}

func (l LaunchFilterable) GetArrayValue(param string) ([]string, error) {
	if param != "attributes" {
		return nil, unknownFieldError(param)
	}
	values := make([]string, 0, len(l.Attributes))
	for _, a := range l.Attributes {
		if a.Key != "" {
			values = append(values, a.Key+":"+a.Value)
		} else {
			values = append(values, a.Value)
		}
	}
	return values, nil
}

type PathName struct {
	LaunchPathName LaunchPathName `json:"launchPathName"`
	ItemPaths      []ItemPathName `json:"itemPaths,omitempty"`
}

type LaunchPathName struct {
	Name   string `json:"name"`
	Number int64  `json:"number"`
}

type ItemPathName struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type TestItemResource struct {
	ID           uint                    `json:"id"`
	UUID         string                  `json:"uuid"`
	Name         string                  `json:"name"`
	CodeRef      string                  `json:"codeRef,omitempty"`
	Description  string                  `json:"description,omitempty"`
	Parameters   []ParameterResource     `json:"parameters,omitempty"`
	Attributes   []ItemAttributeResource `json:"attributes"`
	Type         ItemType                `json:"type"`
	StartTime    Time                    `json:"startTime"`
	EndTime      *Time                   `json:"endTime,omitempty"`
	Status       Status                  `json:"status"`
	Statistics   StatisticsResource      `json:"statistics"`
	Parent       *uint                   `json:"parent,omitempty"`
	PathNames    *PathName               `json:"pathNames,omitempty"`
	Issue        *Issue                  `json:"issue,omitempty"`
	HasChildren  bool                    `json:"hasChildren"`
	HasStats     bool                    `json:"hasStats"`
	LaunchID     uint                    `json:"launchId"`
	UniqueID     string                  `json:"uniqueId"`
	TestCaseID   string                  `json:"testCaseId"`
	TestCaseHash int32                   `json:"testCaseHash"`
	Path         string                  `json:"path"`
	Retries      []TestItemResource      `json:"retries,omitempty"`
	LastModified Time                    `json:"lastModified"`
}

type TestItemHistoryElement struct {
	GroupingField string             `json:"groupingField"`
	Resources     []TestItemResource `json:"resources"`
}

type LogResource struct {
	ID            uint           `json:"id"`
	UUID          string         `json:"uuid"`
	Time          Time           `json:"time"`
	Message       string         `json:"message"`
	Level         LogLevel       `json:"level"`
	ItemID        *uint          `json:"itemId,omitempty"`
	LaunchID      *uint          `json:"launchId,omitempty"`
	BinaryContent *BinaryContent `json:"binaryContent,omitempty"`
}

type BinaryContent struct {
	ID          string `json:"id"`
	ThumbnailID string `json:"thumbnailId,omitempty"`
	ContentType string `json:"contentType"`
}

type TicketResource struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
	URL     string `json:"url"`
}

// PostTicketRQ describes a ticket to create in the bug tracking system.
type PostTicketRQ struct {
	Fields          []PostFormField `json:"fields"`
	IncludeData     bool            `json:"includeData"`
	IncludeLogs     bool            `json:"includeLogs"`
	IncludeComments bool            `json:"includeComments"`
	LogQuantity     int             `json:"logQuantity"`
	BackLinks       map[uint]string `json:"backLinks"`
	Item            uint            `json:"item"`
}

type PostFormField struct {
	ID         string   `json:"id"`
	FieldName  string   `json:"fieldName"`
	FieldType  string   `json:"fieldType"`
	IsRequired bool     `json:"required"`
	Value      []string `json:"value"`
}

type ActivityResource struct {
	ID         uint                   `json:"id"`
	CreatedAt  Time                   `json:"lastModified"`
	User       string                 `json:"user"`
	ProjectID  uint                   `json:"projectId"`
	Action     string                 `json:"actionType"`
	ObjectType string                 `json:"objectType"`
	ObjectID   uint                   `json:"loggedObjectId"`
	ObjectName string                 `json:"objectName"`
	Details    map[string]interface{} `json:"details,omitempty"`
}
