package cache

import (
	"strconv"
	"strings"
)

const (
	GlobalKeyPrefix = "exambank"

	examService = "exam"
	treeObject  = "tree"
)

// GenerateCacheKey generates a cache key for a given service, object type, and identifier.
// If paramsKey are provided, they are joined by "_" and appended to the cache key.
func GenerateCacheKey(serviceName, objectType, identifier string, paramsKey ...string) string {
	baseKey := strings.Join([]string{GlobalKeyPrefix, serviceName, objectType, identifier}, ":")
	if len(paramsKey) > 0 {
		return strings.Join([]string{baseKey, strings.Join(paramsKey, "_")}, ":")
	}
	return baseKey
}

// ExamTreeKey is where the full content tree of an exam is cached.
func ExamTreeKey(examID int64) string {
	return GenerateCacheKey(examService, treeObject, strconv.FormatInt(examID, 10))
}
