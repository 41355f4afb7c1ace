package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
	"github.com/i474232898/mesonet-data-aggregation/internal/store"
	"github.com/i474232898/mesonet-data-aggregation/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/stations/timeseries/wide", func(c *fiber.Ctx) error {
		var q wideQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		wide, err := service.Wide(c.UserContext(), forwardedParams(c, "sensor_index", "wind"), q.SensorIndex, q.Wind)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(wide)
	})

	v1.Get("/stations/:service", func(c *fiber.Ctx) error {
		svc, err := mesonet.ParseService(c.Params("service"))
		if err != nil || !svc.IsStationService() || svc == mesonet.ServiceQCSegments {
			return fiber.NewError(fiber.StatusNotFound, "unknown station service")
		}

		var q enrichQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		params := forwardedParams(c, enrichKeys...)

		if isObservationService(svc) && !q.options().Empty() {
			table, err := service.EnrichedObservations(c.UserContext(), svc, params, q.options())
			if err != nil {
				return toHTTPError(err)
			}
			return c.JSON(table)
		}

		result, err := service.Query(c.UserContext(), svc, params)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(result)
	})

	v1.Get("/reference/:service", func(c *fiber.Ctx) error {
		svc, err := mesonet.ParseService(c.Params("service"))
		if err != nil || svc.IsStationService() {
			return fiber.NewError(fiber.StatusNotFound, "unknown reference table")
		}

		result, err := service.Query(c.UserContext(), svc, forwardedParams(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(result)
	})

	v1.Get("/observations/latest", func(c *fiber.Ctx) error {
		q := stationQuery{STID: c.Query("stid")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshot, err := service.GetLatest(q.STID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no observations for requested station")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load observations")
		}

		return c.JSON(snapshot)
	})

	v1.Get("/observations/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshots, err := service.GetRange(req.Station.STID, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no observation history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load observation history")
		}

		return c.JSON(fiber.Map{
			"stid":      req.Station.STID,
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})
}

// toHTTPError maps service errors onto status codes.
func toHTTPError(err error) error {
	var (
		paramErr *mesonet.ParamError
		apiErr   *mesonet.APIError
	)
	switch {
	case errors.As(err, &paramErr), errors.Is(err, normalize.ErrUsage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		return fiber.NewError(fiber.StatusBadGateway, apiErr.Error())
	case errors.Is(err, mesonet.ErrUnknownService):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadGateway, "failed to reach the mesonet API")
	}
}

// forwardedParams copies the query string into API parameters. The token
// always comes from server configuration.
func forwardedParams(c *fiber.Ctx, skip ...string) mesonet.Params {
	params := mesonet.Params{}
	for k, v := range c.Queries() {
		key := strings.ToLower(k)
		if key == "token" {
			continue
		}
		params[key] = v
	}
	for _, k := range skip {
		delete(params, k)
	}
	return params
}

// stationQuery identifies a station.
type stationQuery struct {
	STID string `validate:"required"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Station stationQuery
	From    time.Time `validate:"required"`
	To      time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.Station = stationQuery{STID: c.Query("stid")}
	if err := validate.Struct(h.Station); err != nil {
		return err
	}

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// wideQuery holds the pivot options of the wide time series endpoint.
type wideQuery struct {
	SensorIndex uint32 `validate:"gte=1"`
	Wind        bool
}

func (w *wideQuery) bind(c *fiber.Ctx) error {
	w.SensorIndex = normalize.DefaultSensorIndex
	if s := c.Query("sensor_index"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return errors.New("sensor_index must be a positive integer")
		}
		w.SensorIndex = uint32(n)
	}
	var err error
	w.Wind, err = queryBool(c, "wind")
	return err
}

var enrichKeys = []string{"with_latency", "network_name", "local_time"}

// enrichQuery holds the optional joins of the station endpoints.
type enrichQuery struct {
	WithLatency bool
	NetworkName string `validate:"omitempty,oneof=short long"`
	LocalTime   bool
}

func (e *enrichQuery) bind(c *fiber.Ctx) error {
	var err error
	if e.WithLatency, err = queryBool(c, "with_latency"); err != nil {
		return err
	}
	if e.LocalTime, err = queryBool(c, "local_time"); err != nil {
		return err
	}
	e.NetworkName = strings.ToLower(c.Query("network_name"))
	return nil
}

func (e enrichQuery) options() weather.EnrichOptions {
	return weather.EnrichOptions{
		Latency:     e.WithLatency,
		NetworkName: e.NetworkName,
		LocalTime:   e.LocalTime,
	}
}

func queryBool(c *fiber.Ctx, key string) (bool, error) {
	s := c.Query(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.New(key + " must be a boolean")
	}
	return b, nil
}

func isObservationService(s mesonet.Service) bool {
	return s == mesonet.ServiceTimeSeries || s == mesonet.ServiceLatest || s == mesonet.ServiceNearestTime
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
