package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/getsentry/vroomscope/internal/config"
	"github.com/getsentry/vroomscope/internal/envutil"
	"github.com/getsentry/vroomscope/internal/httputil"
	"github.com/getsentry/vroomscope/internal/logutil"
	"github.com/getsentry/vroomscope/internal/storageutil"
)

type environment struct {
	config config.ServiceConfig

	profilesBucket *blob.Bucket
	readJobs       chan storageutil.ReadJob
}

var release string

func newEnvironment(ctx context.Context, c config.ServiceConfig) (*environment, error) {
	bucket, err := blob.OpenBucket(ctx, c.BucketURL)
	if err != nil {
		return nil, err
	}
	e := environment{
		config:         c,
		profilesBucket: bucket,
		readJobs:       make(chan storageutil.ReadJob, c.ReadWorkers),
	}
	for i := 0; i < max(c.ReadWorkers, 1); i++ {
		go storageutil.ReadWorker(e.readJobs)
	}
	return &e, nil
}

func (e *environment) shutdown() {
	close(e.readJobs)
	err := e.profilesBucket.Close()
	if err != nil {
		sentry.CaptureException(err)
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/functions", e.getFunctions},
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodGet, "/profiles", e.getProfiles},
		{http.MethodGet, "/profiles/:profile_id", e.getProfile},
		{http.MethodPost, "/profiles", e.postProfile},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.AnonymizeTransactionName(route.handler)
		handlerFunc = httputil.DecompressPayload(handlerFunc)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

// newHandler returns the router wrapped with the Sentry middleware, which
// puts a hub on every request context.
func (e *environment) newHandler() (http.Handler, error) {
	router, err := e.newRouter()
	if err != nil {
		return nil, err
	}
	return sentryhttp.New(sentryhttp.Options{}).Handle(router), nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "convert" {
		logutil.ConfigureLogger(envutil.GetEnvOrFallback("VROOMSCOPE_LOG_LEVEL", "warn"))
		if err := convert(os.Args[2:], os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("conversion failed")
		}
		return
	}

	c, err := config.Load(os.Getenv(config.PathEnv))
	if err != nil {
		log.Fatal().Err(err).Msg("error loading configuration")
	}
	logutil.ConfigureLogger(c.LogLevel)

	env, err := newEnvironment(context.Background(), c)
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	err = sentry.Init(sentry.ClientOptions{
		BeforeSend:       httputil.SetHTTPStatusCodeTag,
		Dsn:              env.config.SentryDSN,
		EnableTracing:    true,
		Environment:      env.config.Environment,
		Release:          release,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	handler, err := env.newHandler()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:    ":" + env.config.Port,
		Handler: handler,
	}

	waitForShutdown := make(chan os.Signal)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	log.Info().Str("port", env.config.Port).Str("bucket", env.config.BucketURL).Msg("vroomscope started")
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
}

func (e *environment) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
