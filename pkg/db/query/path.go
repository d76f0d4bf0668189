package query

import (
	"strconv"
	"strings"
)

// PathIDs splits a dotted item path into ids, skipping malformed segments.
func PathIDs(path string) []uint {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids
}

// ChildPath appends the id to the parent's path.
func ChildPath(parentPath string, id uint) string {
	if parentPath == "" {
		return strconv.FormatUint(uint64(id), 10)
	}
	return parentPath + "." + strconv.FormatUint(uint64(id), 10)
}
