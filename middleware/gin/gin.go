package gin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/galemark/ratelimitgw/ratelimit"
)

// RateLimiter creates a new Gin middleware handler driven by a
// ratelimit.Pipeline: it resolves the matching rule, advances its
// counter, and either lets the request through, delays it through the
// rule's queue, or rejects it with 429.
//
// Unregulated requests (no matching rule) and allowed requests proceed
// immediately. Queued requests wait out their delay in this goroutine
// before calling c.Next, and release their queue slot once the handler
// chain returns. Rejected requests are aborted with 429 and
// X-RateLimit-Queued set to "false".
//
// Example:
//
//	pipeline, _ := ratelimit.NewPipeline(ratelimit.WithStore(store))
//	router := gin.Default()
//	router.Use(ginmw.RateLimiter(pipeline))
func RateLimiter(p *ratelimit.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := p.Handle(c.Request.Context(), c.Request)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		switch decision.Outcome {
		case ratelimit.OutcomeUnregulated, ratelimit.OutcomeAllow:
			c.Next()
			return

		case ratelimit.OutcomeQueued:
			c.Header("X-RateLimit-Queued", "true")
			c.Header("X-RateLimit-Delay-Ms", strconv.FormatInt(decision.Delay.Milliseconds(), 10))

			if err := ratelimit.Wait(c.Request.Context(), decision.Delay); err != nil {
				p.ReleaseQueue(decision.Rule.ID, decision.Identifier.Value)
				c.AbortWithStatus(http.StatusRequestTimeout)
				return
			}
			defer p.ReleaseQueue(decision.Rule.ID, decision.Identifier.Value)
			c.Next()
			return

		default: // ratelimit.OutcomeReject
			c.Header("X-RateLimit-Queued", "false")
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
	}
}
