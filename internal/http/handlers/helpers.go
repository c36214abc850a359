package handlers

import (
	"strconv"

	"github.com/geocoder89/dispatch/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// actorSubject returns the authenticated caller's JWT subject, used to
// stamp created_by on new jobs.
func actorSubject(ctx *gin.Context) (string, bool) {
	return middlewares.SubjectFromContext(ctx)
}

func parsePositiveInt(s string) (int, error) {
	return strconv.Atoi(s)
}
