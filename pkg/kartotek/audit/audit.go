// Package audit provides an append-only audit trail for entity mutations and
// a request logging middleware. Audit writes are fire-and-forget: they never
// block or fail the operation they record.
package audit

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger. Levels follow zerolog's names
// ("debug", "info", "warn", ...); unknown values fall back to info.
func Setup(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// Record emits one audit event for a mutation.
// event is one of "created", "updated", "deleted".
func Record(event string, actorID uint, entityKind string, entityID uint) {
	log.Info().
		Str("event", event).
		Uint("actor", actorID).
		Str("kind", entityKind).
		Uint("entity", entityID).
		Msg("audit")
}

// RequestLogger logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
