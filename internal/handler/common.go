package handler

import (
	"errors"

	"github.com/labstack/echo/v4"
)

var errNoUser = errors.New("no authenticated user in context")

// getUserID extracts the authenticated user id injected by the JWT
// middleware. Handlers behind the auth group may still receive requests
// without it if the route is misconfigured, so absence is an error.
func getUserID(c echo.Context) (string, error) {
	id, ok := c.Get("user_id").(string)
	if !ok || id == "" {
		return "", errNoUser
	}
	return id, nil
}
