package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// heartbeatInterval keeps idle SSE connections alive through proxies and
// lets the server notice dead peers between enrollment bursts.
const heartbeatInterval = 30 * time.Second

type streamClientsResponse struct {
	ConnectedClients int `json:"connectedClients"`
}

func streamClients(hub Broadcaster) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, streamClientsResponse{ConnectedClients: hub.ClientCount()})
	}
}

// streamEnrollments pushes enrollment events to one dashboard observer over
// SSE. Events that fired before the connection are not replayed.
func streamEnrollments(hub Broadcaster, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so a token query param is accepted
		// as a fallback.
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		if _, err := auth.UserIDFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case data, open := <-ch:
				if !open {
					// The hub dropped this observer as unresponsive.
					return nil
				}
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(data); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
