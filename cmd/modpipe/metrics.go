package main

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// registers collectors globally, so created once per process
var httpMetricsMiddleware = echoprometheus.NewMiddleware("modpipe")

var apiRunCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpipe_api_runs",
	Help: "Number of moderation runs started through the HTTP API, by input",
}, []string{"input"})

var storedRunLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpipe_stored_run_lookups",
	Help: "Number of stored moderation result lookups, by outcome",
}, []string{"outcome"})

var resultStoreErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modpipe_result_store_errors",
	Help: "Number of failures reading or writing the result store",
})
