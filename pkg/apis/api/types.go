// Package api contains the request and response types exchanged with reporting agents and the UI.
package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ColumnType int

const (
	ColumnTypeString ColumnType = iota
	ColumnTypeNumerical
	ColumnTypeArray
	ColumnTypeTimestamp
)

type Sort string

const (
	SortAscending  Sort = "asc"
	SortDescending Sort = "desc"
)

// Time accepts either epoch milliseconds or an RFC3339 string on input, and is always
// rendered as epoch milliseconds.
type Time struct {
	time.Time
}

func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// TimePtr converts an optional time for a response, nil stays nil.
func TimePtr(t *time.Time) *Time {
	if t == nil {
		return nil
	}
	return &Time{Time: *t}
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if ms, err := strconv.ParseInt(str, 10, 64); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return err
		}
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// PageInfo describes the position of a page in the full result set.
type PageInfo struct {
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int64 `json:"totalPages"`
}

// Page is a paged response.
type Page[T any] struct {
	Content []T      `json:"content"`
	Page    PageInfo `json:"page"`
}

func NewPage[T any](content []T, number, size int, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := int64(0)
	if size > 0 {
		pages = (total + int64(size) - 1) / int64(size)
	}
	return Page[T]{
		Content: content,
		Page: PageInfo{
			Number:        number,
			Size:          size,
			TotalElements: total,
			TotalPages:    pages,
		},
	}
}

type OperationCompletionRS struct {
	Message string `json:"message"`
}

type EntryCreatedRS struct {
	ID uint `json:"id"`
}

type EntryCreatedAsyncRS struct {
	ID string `json:"id"`
}

type ErrorRS struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}

// BatchElementCreatedRS is a per element result of a batch operation.
type BatchElementCreatedRS struct {
	ID         string `json:"id,omitempty"`
	Message    string `json:"message,omitempty"`
	StackTrace string `json:"stackTrace,omitempty"`
}

type BatchSaveOperatingRS struct {
	Responses []BatchElementCreatedRS `json:"responses"`
}

// ItemAttributeResource is a key:value label on a launch or test item. System attributes are
// hidden from agents.
type ItemAttributeResource struct {
	Key    string `json:"key,omitempty"`
	Value  string `json:"value"`
	System bool   `json:"system,omitempty"`
}

type ParameterResource struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StatisticsResource contains execution and defect counters keyed by field name.
type StatisticsResource struct {
	Executions map[string]int            `json:"executions"`
	Defects    map[string]map[string]int `json:"defects"`
}

func unknownFieldError(param string) error {
	return fmt.Errorf("unknown field %s", param)
}
