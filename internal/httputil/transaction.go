package httputil

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/julienschmidt/httprouter"
)

// HTTPStatusCodeTag is the name of the HTTP status code tag.
const HTTPStatusCodeTag = "http.response.status_code"

// SetHTTPStatusCodeTag sets the status code tag for the current request to the top-level transaction.
// TODO: Move this to the SDK itself.
func SetHTTPStatusCodeTag(e *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint == nil || hint.Response == nil {
		return e
	}
	if e.Tags == nil {
		e.Tags = make(map[string]string)
	}
	if _, exists := e.Tags[HTTPStatusCodeTag]; !exists {
		e.Tags[HTTPStatusCodeTag] = strconv.Itoa(hint.Response.StatusCode)
	}
	return e
}

// TransactionName returns the request path with route parameter values
// replaced by their names, so requests for different profiles are grouped.
func TransactionName(r *http.Request) string {
	name := r.URL.Path
	for _, p := range httprouter.ParamsFromContext(r.Context()) {
		if p.Value == "" {
			continue
		}
		name = strings.Replace(name, p.Value, ":"+p.Key, 1)
	}
	return r.Method + " " + name
}

// AnonymizeTransactionName names the Sentry transaction after the route
// instead of the raw URL.
func AnonymizeTransactionName(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.Scope().SetTransaction(TransactionName(r))
		}
		next.ServeHTTP(w, r)
	})
}
