package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/vroomscope/internal/chrometrace"
	"github.com/getsentry/vroomscope/internal/errorutil"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/httputil"
	"github.com/getsentry/vroomscope/internal/profile"
	"github.com/getsentry/vroomscope/internal/speedscope"
	"github.com/getsentry/vroomscope/internal/storageutil"
)

const (
	viewCallers     = "callers"
	viewCallees     = "callees"
	viewChromeTrace = "chrometrace"
	viewFlamegraph  = "flamegraph"
	viewFlattened   = "flattened"
	viewLeftHeavy   = "left-heavy"
	viewTimeline    = "timeline"
)

type PostProfileResponse struct {
	ProfileID string `json:"profile_id"`
}

func storagePath(profileID string) string {
	return "profiles/" + profileID
}

func importStatusCode(err error) int {
	if errors.Is(err, errorutil.ErrEmptyProfile) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func (env *environment) postProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	query := r.URL.Query()
	format := query.Get("format")
	name := query.Get("name")

	s := sentry.StartSpan(ctx, "request.body")
	s.Description = "Read request body"
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, env.config.MaxBodyBytes))
	s.Finish()
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s = sentry.StartSpan(ctx, "profile.import")
	s.Description = "Build profiles"
	profiles, err := importProfiles(format, name, body)
	s.Finish()
	if err != nil {
		log.Err(err).Str("format", format).Int("size", len(body)).Msg("profile can't be imported")
		http.Error(w, err.Error(), importStatusCode(err))
		return
	}

	if query.Get("demangle") == "1" {
		for _, p := range profiles {
			p.Demangle(nil)
		}
	}

	profileID := strings.Replace(uuid.New().String(), "-", "", -1)
	hub.Scope().SetTag("profile_id", profileID)

	// Profiles are stored as call events so consecutive calls to the same
	// frame stay apart when they are rebuilt.
	stored, err := speedscope.Export(name, profiles, speedscope.ViewTimeline)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s = sentry.StartSpan(ctx, "blob.write")
	s.Description = "Write profile to storage"
	size, err := storageutil.CompressedWrite(ctx, env.profilesBucket, storagePath(profileID), stored)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	log.Info().
		Str("profile_id", profileID).
		Int("profiles", len(profiles)).
		Int64("stored_bytes", size).
		Msg("profile stored")

	b, err := json.Marshal(PostProfileResponse{ProfileID: profileID})
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(b)
}

func (env *environment) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	profileID := ps.ByName("profile_id")
	hub.Scope().SetTag("profile_id", profileID)

	s := sentry.StartSpan(ctx, "blob.read")
	s.Description = "Read profile from storage"
	data, err := storageutil.ReadCompressed(ctx, env.profilesBucket, storagePath(profileID))
	s.Finish()
	if err != nil {
		if errors.Is(err, storageutil.ErrObjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s = sentry.StartSpan(ctx, "profile.import")
	s.Description = "Rebuild profiles"
	profiles, err := speedscope.Import(data)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	view := query.Get("view")
	if view == "" {
		view = viewTimeline
	}

	var focal *frame.Frame
	if view == viewCallers || view == viewCallees {
		frames, err := speedscope.SharedFrames(data)
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		i, err := strconv.Atoi(query.Get("frame"))
		if err != nil || i < 0 || i >= len(frames) {
			http.Error(w, "expected frame query parameter to be a frame index", http.StatusBadRequest)
			return
		}
		focal = &frames[i]
	}

	s = sentry.StartSpan(ctx, "profile.view")
	s.Description = "Render " + view
	o, status, err := render(profileID, profiles, view, focal)
	s.Finish()
	if err != nil {
		if status == http.StatusInternalServerError {
			hub.CaptureException(err)
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeOutput(w, r, o)
}

// readProfiles fetches the stored documents concurrently and rebuilds their
// profiles, in the order of profileIDs. On error, it also returns the status
// code to respond with.
func (env *environment) readProfiles(ctx context.Context, profileIDs []string) ([][]*profile.Profile, int, error) {
	s := sentry.StartSpan(ctx, "blob.read")
	s.Description = "Read profiles from storage"
	// results is large enough for every job, workers never block on it once
	// this function returned early.
	results := make(chan storageutil.ReadJobResult, len(profileIDs))
	for i, profileID := range profileIDs {
		job := storageutil.ReadJob{
			Ctx:        ctx,
			Storage:    env.profilesBucket,
			ObjectName: storagePath(profileID),
			Index:      i,
			Result:     results,
		}
		select {
		case env.readJobs <- job:
		case <-ctx.Done():
			s.Finish()
			return nil, http.StatusRequestTimeout, ctx.Err()
		}
	}
	documents := make([][]byte, len(profileIDs))
	var readErr error
	for range profileIDs {
		res := <-results
		if res.Err != nil {
			if readErr == nil || errors.Is(res.Err, storageutil.ErrObjectNotFound) {
				readErr = res.Err
			}
			continue
		}
		documents[res.Index] = res.Data
	}
	s.Finish()
	if readErr != nil {
		if errors.Is(readErr, storageutil.ErrObjectNotFound) {
			return nil, http.StatusNotFound, readErr
		}
		return nil, http.StatusInternalServerError, readErr
	}

	s = sentry.StartSpan(ctx, "profile.import")
	s.Description = "Rebuild profiles"
	defer s.Finish()
	profiles := make([][]*profile.Profile, 0, len(documents))
	for _, d := range documents {
		imported, err := speedscope.Import(d)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		profiles = append(profiles, imported)
	}
	return profiles, http.StatusOK, nil
}

func (env *environment) getProfiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	query := r.URL.Query()
	_, logger, ok := httputil.GetRequiredQueryParameters(w, r, "profile_id")
	if !ok {
		return
	}
	profileIDs := query["profile_id"]

	view := query.Get("view")
	if view == "" {
		view = viewTimeline
	}
	if view != viewTimeline && view != viewLeftHeavy && view != viewChromeTrace {
		http.Error(w, fmt.Sprintf("view %q can't be applied to several profiles", view), http.StatusBadRequest)
		return
	}

	documents, status, err := env.readProfiles(ctx, profileIDs)
	if err != nil {
		if status == http.StatusInternalServerError {
			hub.CaptureException(err)
		}
		w.WriteHeader(status)
		return
	}
	var profiles []*profile.Profile
	for _, d := range documents {
		profiles = append(profiles, d...)
	}
	logger.Debug().Int("profiles", len(profiles)).Str("view", view).Msg("merging profiles")

	o, status, err := render(strings.Join(profileIDs, ","), profiles, view, nil)
	if err != nil {
		if status == http.StatusInternalServerError {
			hub.CaptureException(err)
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeOutput(w, r, o)
}

// render applies a view to profiles and returns the document to send along
// with the status code to use on error. Every view but chrometrace renders a
// speedscope document.
func render(name string, profiles []*profile.Profile, view string, focal *frame.Frame) (interface{}, int, error) {
	var (
		o   *speedscope.Output
		err error
	)
	switch view {
	case viewChromeTrace:
		t, err := chrometrace.Export(profiles)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return t, http.StatusOK, nil
	case viewTimeline:
		o, err = speedscope.Export(name, profiles, speedscope.ViewTimeline)
	case viewLeftHeavy:
		o, err = speedscope.Export(name, profiles, speedscope.ViewLeftHeavy)
	case viewFlamegraph:
		o = speedscope.ExportSampled(name, profiles)
		o.SortSamplesForFlamegraph()
	case viewFlattened, viewCallers, viewCallees:
		derived := make([]*profile.Profile, 0, len(profiles))
		for _, p := range profiles {
			var d *profile.Profile
			switch view {
			case viewFlattened:
				d, err = p.WithRecursionFlattened()
			case viewCallers:
				d, err = p.InvertedForCallersOf(*focal)
			default:
				d, err = p.ForCalleesOf(*focal)
			}
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			derived = append(derived, d)
		}
		layout := speedscope.ViewLeftHeavy
		if view == viewFlattened {
			layout = speedscope.ViewTimeline
		}
		o, err = speedscope.Export(name, derived, layout)
	default:
		return nil, http.StatusBadRequest, fmt.Errorf("unknown view %q", view)
	}
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return o, http.StatusOK, nil
}

func writeOutput(w http.ResponseWriter, r *http.Request, o interface{}) {
	hub := sentry.GetHubFromContext(r.Context())
	s := sentry.StartSpan(r.Context(), "json.marshal")
	s.Description = "Marshal document"
	defer s.Finish()

	b, err := json.Marshal(o)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
