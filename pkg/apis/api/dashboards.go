package api

// FilterCondition is a single condition of a saved filter, such as name cnt "smoke".
type FilterCondition struct {
	Condition      string `json:"condition"`
	FilteringField string `json:"filteringField"`
	Value          string `json:"value"`
}

type FilterOrder struct {
	SortingColumn string `json:"sortingColumn"`
	IsAsc         bool   `json:"isAsc"`
}

type UpdateUserFilterRQ struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	ObjectType  string            `json:"type"`
	Conditions  []FilterCondition `json:"conditions"`
	Orders      []FilterOrder     `json:"orders"`
	Share       *bool             `json:"share,omitempty"`
}

type UserFilterResource struct {
	ID          uint              `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	ObjectType  string            `json:"type"`
	Conditions  []FilterCondition `json:"conditions"`
	Orders      []FilterOrder     `json:"orders"`
	Owner       string            `json:"owner"`
	Share       bool              `json:"share"`
}

type CreateDashboardRQ struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Share       bool   `json:"share"`
}

type UpdateDashboardRQ struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Share       *bool               `json:"share,omitempty"`
	Widgets     []WidgetObjectModel `json:"updateWidgets,omitempty"`
}

type AddWidgetRq struct {
	AddWidget WidgetObjectModel `json:"addWidget"`
}

// WidgetObjectModel positions a widget on a dashboard.
type WidgetObjectModel struct {
	WidgetID   uint     `json:"widgetId"`
	WidgetName string   `json:"widgetName,omitempty"`
	WidgetType string   `json:"widgetType,omitempty"`
	Size       Size     `json:"widgetSize"`
	Position   Position `json:"widgetPosition"`
	Share      bool     `json:"share"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Position struct {
	X int `json:"positionX"`
	Y int `json:"positionY"`
}

type DashboardResource struct {
	ID          uint                `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Owner       string              `json:"owner"`
	Share       bool                `json:"share"`
	Widgets     []WidgetObjectModel `json:"widgets"`
}

type WidgetRQ struct {
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	WidgetType        string            `json:"widgetType"`
	ContentParameters ContentParameters `json:"contentParameters"`
	FilterIDs         []uint            `json:"filterIds"`
	Share             *bool             `json:"share,omitempty"`
}

type ContentParameters struct {
	ContentFields []string               `json:"contentFields"`
	ItemsCount    int                    `json:"itemsCount"`
	WidgetOptions map[string]interface{} `json:"widgetOptions"`
}

type WidgetResource struct {
	ID                uint                   `json:"id"`
	Name              string                 `json:"name"`
	Description       string                 `json:"description,omitempty"`
	WidgetType        string                 `json:"widgetType"`
	ContentParameters ContentParameters      `json:"contentParameters"`
	AppliedFilters    []UserFilterResource   `json:"appliedFilters"`
	Owner             string                 `json:"owner"`
	Share             bool                   `json:"share"`
	Content           map[string]interface{} `json:"content"`
}
