package nethttp

import (
	"net/http"
	"strconv"

	"github.com/galemark/ratelimitgw/ratelimit"
)

// Middleware creates a new middleware handler for the standard net/http
// library, driven by a ratelimit.Pipeline. It wraps an existing
// http.Handler and applies the same allow/queue/reject decision the gin
// middleware does.
//
// Example:
//
//	pipeline, _ := ratelimit.NewPipeline(ratelimit.WithStore(store))
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", myHandler)
//
//	http.ListenAndServe(":8080", nethttp.Middleware(pipeline)(mux))
func Middleware(p *ratelimit.Pipeline) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := p.Handle(r.Context(), r)
			if err != nil {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			switch decision.Outcome {
			case ratelimit.OutcomeUnregulated, ratelimit.OutcomeAllow:
				next.ServeHTTP(w, r)

			case ratelimit.OutcomeQueued:
				w.Header().Set("X-RateLimit-Queued", "true")
				w.Header().Set("X-RateLimit-Delay-Ms", strconv.FormatInt(decision.Delay.Milliseconds(), 10))

				if err := ratelimit.Wait(r.Context(), decision.Delay); err != nil {
					p.ReleaseQueue(decision.Rule.ID, decision.Identifier.Value)
					http.Error(w, "Request Timeout", http.StatusRequestTimeout)
					return
				}
				defer p.ReleaseQueue(decision.Rule.ID, decision.Identifier.Value)
				next.ServeHTTP(w, r)

			default: // ratelimit.OutcomeReject
				w.Header().Set("X-RateLimit-Queued", "false")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			}
		})
	}
}
