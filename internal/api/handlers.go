package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sreeram77/battery-pm/internal/predictor"
	"github.com/sreeram77/battery-pm/internal/storage"
)

// noTelemetryMessage is the error body for requests without telemetry
const noTelemetryMessage = "No telemetry data provided"

// PredictRequest is the body of POST /predict
type PredictRequest struct {
	Telemetry map[string]float64 `json:"telemetry"`
}

// PredictDetails holds the per-model predictions
type PredictDetails struct {
	Regression float64 `json:"regression_model_prediction"`
	Sequence   float64 `json:"lstm_model_prediction"`
}

// PredictResponse is the body of a successful POST /predict
type PredictResponse struct {
	RUL     float64        `json:"rul_prediction"`
	Details PredictDetails `json:"details"`
}

// Prediction represents a stored prediction
type Prediction struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	RUL        float64            `json:"rul_prediction"`
	Regression float64            `json:"regression_model_prediction"`
	Sequence   float64            `json:"lstm_model_prediction"`
	Telemetry  map[string]float64 `json:"telemetry,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// predict handles POST /predict
func (s *Server) predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// An empty body carries no telemetry at all
		if errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": noTelemetryMessage})
			return
		}
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid telemetry: %v", err)})
		return
	}
	if len(req.Telemetry) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": noTelemetryMessage})
		return
	}

	p, err := s.predictor.Predict(c.Request.Context(), req.Telemetry)
	switch {
	case errors.Is(err, predictor.ErrNoTelemetry):
		c.JSON(http.StatusBadRequest, gin.H{"error": noTelemetryMessage})
		return
	case err != nil:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		RUL: p.RUL,
		Details: PredictDetails{
			Regression: p.Regression,
			Sequence:   p.Sequence,
		},
	})
}

// listPredictions handles GET /api/v1/predictions
func (s *Server) listPredictions(c *gin.Context) {
	startTime, endTime, err := parseTimeRange(c)
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid time range", err.Error())
		return
	}

	records, err := s.storage.List(c.Request.Context(), startTime, endTime)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list predictions")
		sendError(c, http.StatusInternalServerError, "Failed to list predictions", err.Error())
		return
	}

	c.JSON(http.StatusOK, toPredictions(records))
}

// latestPredictions handles GET /api/v1/predictions/latest
func (s *Server) latestPredictions(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "10"))
	if err != nil || n <= 0 {
		sendError(c, http.StatusBadRequest, "Invalid count", "n must be a positive integer")
		return
	}

	records, err := s.storage.Latest(c.Request.Context(), n)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to get latest predictions")
		sendError(c, http.StatusInternalServerError, "Failed to get latest predictions", err.Error())
		return
	}

	c.JSON(http.StatusOK, toPredictions(records))
}

func toPredictions(records []storage.PredictionRecord) []Prediction {
	result := make([]Prediction, 0, len(records))
	for _, r := range records {
		result = append(result, Prediction{
			ID:         r.ID,
			Timestamp:  r.Timestamp,
			RUL:        r.RUL,
			Regression: r.RegressionPrediction,
			Sequence:   r.SequencePrediction,
			Telemetry:  r.Telemetry,
		})
	}
	return result
}

// parseTimeRange parses start and end time from query parameters
func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now()
	defaultStart := now.Add(-24 * time.Hour) // Default to last 24 hours

	// Parse start time
	startTimeStr := c.DefaultQuery("start_time", "")
	if startTimeStr == "" {
		startTimeStr = c.DefaultQuery("start", "")
	}
	startTime, err := parseTimeParam(startTimeStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_time: %v", err)
	}
	if startTime == nil {
		startTime = &defaultStart
	}

	// Parse end time
	endTimeStr := c.DefaultQuery("end_time", "")
	if endTimeStr == "" {
		endTimeStr = c.DefaultQuery("end", "")
	}
	endTime, err := parseTimeParam(endTimeStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_time: %v", err)
	}
	if endTime == nil {
		endTime = &now
	}

	// Validate time range
	if endTime.Before(*startTime) {
		return time.Time{}, time.Time{}, fmt.Errorf("end time cannot be before start time")
	}

	return *startTime, *endTime, nil
}

// parseTimeParam parses a time parameter from a string
func parseTimeParam(timeStr string) (*time.Time, error) {
	if timeStr == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// sendError sends an error response
func sendError(c *gin.Context, code int, message string, details ...string) {
	err := ErrorResponse{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = details[0]
	}

	c.JSON(code, err)
}
