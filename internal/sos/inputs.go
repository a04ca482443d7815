package sos

import (
	"math"

	"github.com/pkg/errors"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
)

type LocationInput struct {
	Longitude float64  `json:"longitude"`
	Latitude  float64  `json:"latitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}

func (in LocationInput) Validate() error {
	switch {
	case !finite(in.Latitude) || !finite(in.Longitude):
		return errors.Wrap(ErrInvalidInput, "coordinates must be finite numbers")
	case !finitePtr(in.Accuracy) || !finitePtr(in.Speed) || !finitePtr(in.Heading):
		return errors.Wrap(ErrInvalidInput, "location fields must be finite numbers")
	case in.Latitude < -90 || in.Latitude > 90:
		return errors.Wrap(ErrInvalidInput, "latitude must be within [-90, 90]")
	case in.Longitude < -180 || in.Longitude > 180:
		return errors.Wrap(ErrInvalidInput, "longitude must be within [-180, 180]")
	case in.Accuracy != nil && *in.Accuracy < 0:
		return errors.Wrap(ErrInvalidInput, "accuracy must not be negative")
	case in.Speed != nil && *in.Speed < 0:
		return errors.Wrap(ErrInvalidInput, "speed must not be negative")
	case in.Heading != nil && (*in.Heading < 0 || *in.Heading > 360):
		return errors.Wrap(ErrInvalidInput, "heading must be within [0, 360]")
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func finitePtr(v *float64) bool { return v == nil || finite(*v) }

type CreateAlertInput struct {
	Description *string       `json:"description,omitempty"`
	Location    LocationInput `json:"location"`
}

type RatingInput struct {
	ContactID *string `json:"trustedContactId,omitempty"`
	Rating    int     `json:"rating"`
	Comment   *string `json:"comment,omitempty"`
}

type ResolveInput struct {
	Reason  model.ResolutionReason `json:"resolutionReason"`
	Ratings []RatingInput          `json:"ratings,omitempty"`
}

func (in ResolveInput) Validate() error {
	if !in.Reason.Valid() {
		return errors.Wrapf(ErrInvalidInput, "unknown resolution reason %q", in.Reason)
	}
	for i, r := range in.Ratings {
		if r.Rating < 1 || r.Rating > 5 {
			return errors.Wrapf(ErrInvalidInput, "rating %d must be within [1, 5]", i)
		}
	}
	return nil
}
