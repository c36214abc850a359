package utils

import "strconv"

// BuildSpecificationsListCacheKey keys the in-memory cache used by the
// specification registry's list endpoint (GET /specifications), which is
// read far more often than it is written.
func BuildSpecificationsListCacheKey(activeOnly bool) string {
	return "specifications:list:v1:active=" + strconv.FormatBool(activeOnly)
}
