package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Заголовки, которые выставляет вышестоящий шлюз аутентификации.
const (
	HeaderOrganizationID = "X-Organization-ID"
	HeaderUserID         = "X-User-ID"
)

type actorKey struct{}

// requireActor достаёт актора из заголовков и кладёт его в контекст.
func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := domain.Actor{
			OrganizationID: strings.TrimSpace(r.Header.Get(HeaderOrganizationID)),
			UserID:         strings.TrimSpace(r.Header.Get(HeaderUserID)),
		}
		if err := actor.Validate(); err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing actor identity headers")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(domain.Actor)
	return actor
}
