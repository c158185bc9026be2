package main

import (
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"

	"github.com/getsentry/vroomscope/internal/httputil"
	"github.com/getsentry/vroomscope/internal/metrics"
)

const (
	defaultMaxUniqueFunctions = 100
	maxNumOfExamples          = 5
)

type GetFunctionsResponse struct {
	Functions []metrics.FunctionMetrics `json:"functions"`
}

// getFunctions aggregates self weights by function across stored profiles.
func (env *environment) getFunctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	query := r.URL.Query()
	_, logger, ok := httputil.GetRequiredQueryParameters(w, r, "profile_id")
	if !ok {
		return
	}
	profileIDs := query["profile_id"]

	limit := uint(defaultMaxUniqueFunctions)
	if v := query.Get("limit"); v != "" {
		l, err := strconv.ParseUint(v, 10, 32)
		if err != nil || l == 0 {
			http.Error(w, "expected limit to be a positive integer", http.StatusBadRequest)
			return
		}
		limit = uint(l)
	}

	documents, status, err := env.readProfiles(ctx, profileIDs)
	if err != nil {
		if status == http.StatusInternalServerError {
			hub.CaptureException(err)
		}
		w.WriteHeader(status)
		return
	}

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Aggregate functions"
	ma := metrics.NewAggregator(limit, maxNumOfExamples)
	for i, profiles := range documents {
		for _, p := range profiles {
			ma.AddFunctions(metrics.ExtractFunctions(p), profileIDs[i])
		}
	}
	functions := ma.ToMetrics()
	s.Finish()
	logger.Debug().Int("profiles", len(profileIDs)).Int("functions", len(functions)).Msg("functions aggregated")

	writeOutput(w, r, GetFunctionsResponse{Functions: functions})
}
