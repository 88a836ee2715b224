package v1

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-helpers/pkg/api"
)

// fail hands err to the error middleware. Anything that is not already a
// problem is hidden behind a 500.
func fail(c *gin.Context, detail string, err error) {
	var problem *api.Problem
	if errors.As(err, &problem) {
		_ = c.Error(problem)
		return
	}
	_ = c.Error(api.InternalError(detail, err))
}
