package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-report/internal/common"
	"github.com/i474232898/weather-report/internal/forecast"
)

const (
	msgNotFound = "recurso não encontrado"
	msgInternal = "erro interno do servidor"
)

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *forecast.Service) {
	api := app.Group("/api")

	api.Post("/weather", func(c *fiber.Ctx) error {
		var body ingestBody
		if raw := c.Body(); len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "corpo da requisição inválido")
			}
		}

		result, err := service.Ingest(c.UserContext(), body.toRequest())
		if err != nil {
			return err
		}

		resp := fiber.Map{
			"message":            result.Message(),
			"city_name_official": result.City,
		}
		if result.Cached {
			resp["cached"] = true
		}
		return c.JSON(resp)
	})

	api.Get("/weather/report", func(c *fiber.Ctx) error {
		records, err := service.Report(c.UserContext(), forecast.ReportFilter{
			City:      c.Query("cidade"),
			Latitude:  c.Query("latitude"),
			Longitude: c.Query("longitude"),
			StartDate: c.Query("startDate"),
			EndDate:   c.Query("endDate"),
		})
		if err != nil {
			return err
		}
		return c.JSON(records)
	})
}

// ingestBody is the POST /api/weather payload. Coordinates may arrive as
// JSON numbers or strings.
type ingestBody struct {
	City      string          `json:"cidade"`
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
}

func (b ingestBody) toRequest() forecast.IngestRequest {
	return forecast.IngestRequest{
		City:      b.City,
		Latitude:  common.FlexText(b.Latitude),
		Longitude: common.FlexText(b.Longitude),
		StartDate: b.StartDate,
		EndDate:   b.EndDate,
	}
}

// ErrorHandler renders every failure as {error, message, details?}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *forecast.Error
	if errors.As(err, &fe) {
		body := fiber.Map{"error": true, "message": fe.Message}
		if fe.Details != "" {
			body["details"] = fe.Details
		}
		return c.Status(fe.Status).JSON(body)
	}

	var e *fiber.Error
	if errors.As(err, &e) {
		msg := e.Message
		switch e.Code {
		case fiber.StatusNotFound:
			msg = msgNotFound
		case fiber.StatusInternalServerError:
			msg = msgInternal
		}
		return c.Status(e.Code).JSON(fiber.Map{"error": true, "message": msg})
	}

	log.Printf("ERROR: unhandled error on %s %s: %v", c.Method(), c.OriginalURL(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   true,
		"message": msgInternal,
	})
}

// NotFound answers routes nothing else matched. Register it last.
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":   true,
		"message": msgNotFound,
	})
}

// RequestObserver receives one observation per served request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Instrument times each request and reports it under its route pattern.
func Instrument(obs RequestObserver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var e *fiber.Error
			var fe *forecast.Error
			switch {
			case errors.As(err, &fe):
				status = fe.Status
			case errors.As(err, &e):
				status = e.Code
			default:
				status = fiber.StatusInternalServerError
			}
		}
		obs.ObserveRequest(c.Method(), c.Route().Path, status, time.Since(start))
		return err
	}
}
