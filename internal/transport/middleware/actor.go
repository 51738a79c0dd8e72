package middleware

import (
	"net/http"
	"strings"

	"github.com/frahmantamala/pos-payments/internal"
)

// ActorHeader names who triggered a callback that did not come from the gateway itself,
// such as the replay tool. Status history records it in place of the system actor.
const ActorHeader = "X-Actor-ID"

const maxActorLength = 64

func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actorID == "" || len(actorID) > maxActorLength {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(internal.ContextWithActorID(r.Context(), actorID)))
	})
}
