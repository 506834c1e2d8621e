package distance

import (
	"context"
	"fmt"
	"strings"
)

// Mode is a travel mode understood by the matrix service.
type Mode string

// Travel modes.
const (
	ModeDriving   Mode = "driving"
	ModeWalking   Mode = "walking"
	ModeBicycling Mode = "bicycling"
	ModeTransit   Mode = "transit"
)

// ParseMode parses a travel mode; the empty string means driving.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeDriving, nil
	case ModeDriving, ModeWalking, ModeBicycling, ModeTransit:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// StatusOK is the success status used at both the top level and per element.
const StatusOK = "OK"

// MatrixRequest asks for distances from every origin to every destination.
type MatrixRequest struct {
	Origins      []string
	Destinations []string
	Mode         Mode
}

// MatrixResponse mirrors the distance-matrix wire shape.
type MatrixResponse struct {
	Status               string      `json:"status"`
	ErrorMessage         string      `json:"error_message,omitempty"`
	OriginAddresses      []string    `json:"origin_addresses"`
	DestinationAddresses []string    `json:"destination_addresses"`
	Rows                 []MatrixRow `json:"rows"`
}

// MatrixRow holds the elements for one origin, in destination order.
type MatrixRow struct {
	Elements []MatrixElement `json:"elements"`
}

// MatrixElement is one origin/destination result.
type MatrixElement struct {
	Status   string     `json:"status"`
	Distance *TextValue `json:"distance,omitempty"`
	Duration *TextValue `json:"duration,omitempty"`
}

// TextValue is a human readable text with its numeric value (meters or seconds).
type TextValue struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

// ok reports whether the element carries a usable distance and duration.
func (e MatrixElement) ok() bool {
	return e.Status == StatusOK && e.Distance != nil && e.Duration != nil
}

// MatrixService is the remote distance-matrix collaborator.
type MatrixService interface {
	Matrix(ctx context.Context, req MatrixRequest) (MatrixResponse, error)
}

// MatrixFunc adapts a function to MatrixService.
type MatrixFunc func(ctx context.Context, req MatrixRequest) (MatrixResponse, error)

// Matrix implements MatrixService.
func (f MatrixFunc) Matrix(ctx context.Context, req MatrixRequest) (MatrixResponse, error) {
	return f(ctx, req)
}
