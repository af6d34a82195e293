package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stride-social/modpipe/automod/engine"
	"github.com/stride-social/modpipe/automod/source"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("modpipe")

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	errorMessage := "internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("modpipe-http-internal-error", "err", err)
	}
	c.JSON(code, engine.ErrorResponse{Success: false, Error: errorMessage})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(200, GenericStatus{Status: "ok", Daemon: "modpipe", Version: versioninfo.Short()})
}

// GET /moderation: moderates the configured content source.
func (srv *Server) HandleModerateSource(c echo.Context) error {
	if srv.source == nil {
		return c.JSON(http.StatusBadGateway, engine.NewErrorResponse(fmt.Errorf("%w: no content source configured", source.ErrSourceUnavailable)))
	}
	return srv.moderate(c, srv.source, "source")
}

// POST /moderation: moderates the batch in the request body, either a bare
// JSON array or an envelope object.
func (srv *Server) HandleModerateBody(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, engine.NewErrorResponse(fmt.Errorf("reading request body: %w", err)))
	}
	raws, err := source.DecodeBatch(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, engine.NewErrorResponse(err))
	}
	return srv.moderate(c, &source.StaticSource{Items: raws}, "body")
}

// GET /moderation/:runID: re-reads a stored run.
func (srv *Server) HandleGetRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("runID")

	resp, err := srv.results.Get(ctx, runID)
	if err != nil {
		resultStoreErrors.Inc()
		storedRunLookups.WithLabelValues("error").Inc()
		return fmt.Errorf("reading stored run %s: %w", runID, err)
	}
	if resp == nil {
		storedRunLookups.WithLabelValues("miss").Inc()
		return c.JSON(http.StatusNotFound, engine.NewErrorResponse(fmt.Errorf("moderation run not found: %s", runID)))
	}
	storedRunLookups.WithLabelValues("hit").Inc()

	out, err := shapeResponse(resp, c.QueryParam("filter"), c.QueryParam("sort"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, engine.NewErrorResponse(err))
	}
	return c.JSON(http.StatusOK, out)
}

// input labels where the batch came from, for metrics and traces
func (srv *Server) moderate(c echo.Context, src source.ContentSource, input string) error {
	filter, order := c.QueryParam("filter"), c.QueryParam("sort")
	// validate query params before spending a run on them
	if _, err := shapeResponse(&engine.Response{}, filter, order); err != nil {
		return c.JSON(http.StatusBadRequest, engine.NewErrorResponse(err))
	}

	apiRunCount.WithLabelValues(input).Inc()
	ctx, span := tracer.Start(c.Request().Context(), "moderate", trace.WithAttributes(attribute.String("input", input)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, srv.runTimeout)
	defer cancel()

	res, err := srv.engine.RunSource(ctx, src)
	if errors.Is(err, engine.ErrSourceUnavailable) {
		return c.JSON(http.StatusBadGateway, engine.NewErrorResponse(err))
	} else if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("run_id", res.RunID), attribute.Bool("used_fallback", res.UsedFallback))

	resp := engine.NewResponse(res)
	// stored unfiltered, so a later read can apply different views; the run
	// context may already be past its deadline here
	if err := srv.results.Put(context.WithoutCancel(ctx), resp); err != nil {
		resultStoreErrors.Inc()
		srv.logger.Error("failed to store moderation run", "run", res.RunID, "err", err)
	}

	out, err := shapeResponse(resp, filter, order)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// applies the filter and sort views to a response
func shapeResponse(resp *engine.Response, filter, order string) (*engine.Response, error) {
	out, err := resp.Filter(filter)
	if err != nil {
		return nil, err
	}
	return out.Sort(order)
}
