package middleware

import (
	"time"

	applogger "SolSignal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging emits one structured log line per request.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			l.Info("http request",
				applogger.String("method", req.Method),
				applogger.String("path", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", responseStatus(c, err)),
				applogger.Duration("took", time.Since(start)),
			)
			return err
		}
	}
}
