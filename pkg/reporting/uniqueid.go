package reporting

import (
	"encoding/base64"
	"strings"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
)

const uniqueIDSecret = "auto:"

// GenerateUniqueID identifies an item across launches by its project, launch name, the
// names of its ancestors, its own name and its parameters.
func GenerateUniqueID(projectName, launchName string, pathNames []string, itemName string, params []apitype.ParameterResource) string {
	parts := []string{uniqueIDSecret, projectName, launchName}
	if len(pathNames) > 0 {
		parts = append(parts, strings.Join(pathNames, ","))
	}
	parts = append(parts, itemName)
	if len(params) > 0 {
		rendered := make([]string, len(params))
		for i, p := range params {
			if p.Key != "" {
				rendered[i] = p.Key + "=" + p.Value
			} else {
				rendered[i] = p.Value
			}
		}
		parts = append(parts, strings.Join(rendered, ","))
	}
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(parts, ";")))
}

// ValidateUniqueID reports whether the id was produced by GenerateUniqueID.
func ValidateUniqueID(id string) bool {
	if id == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return false
	}
	return strings.HasPrefix(string(decoded), uniqueIDSecret)
}

// TestCaseID defaults to the code reference followed by the parameter values in brackets,
// or to the item name when there is no code reference.
func TestCaseID(rq apitype.StartTestItemRQ) string {
	if rq.TestCaseID != "" {
		return rq.TestCaseID
	}
	if rq.CodeRef == "" {
		return rq.Name
	}
	if len(rq.Parameters) == 0 {
		return rq.CodeRef
	}
	values := make([]string, len(rq.Parameters))
	for i, p := range rq.Parameters {
		values[i] = p.Value
	}
	return rq.CodeRef + "[" + strings.Join(values, ",") + "]"
}

// TestCaseHash is the 32 bit string hash also computed by the agents, s[0]*31^(n-1) + ... + s[n-1]
// over UTF-16 code units.
func TestCaseHash(s string) int32 {
	var h int32
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			h = 31*h + int32(0xD800+(r>>10))
			h = 31*h + int32(0xDC00+(r&0x3FF))
			continue
		}
		h = 31*h + int32(r)
	}
	return h
}
