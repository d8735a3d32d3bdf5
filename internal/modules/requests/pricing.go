package requests

import (
	"fmt"
	"math"
	"time"

	"family-booking/internal/models"
)

// ChargeAmount prices a booking: the provider's hourly rate times the
// booked window (at least one hour), or the client's budget when the provider
// has no rate.
func ChargeAmount(req *models.ServiceRequest, provider *models.Provider) (float64, error) {
	if provider != nil && provider.HourlyRate > 0 {
		hours := windowHours(req.WindowStart, req.WindowEnd)
		return math.Round(provider.HourlyRate*hours*100) / 100, nil
	}
	if req.Budget != nil && *req.Budget > 0 {
		return *req.Budget, nil
	}
	return 0, fmt.Errorf("%w: request %s has no price", models.ErrPaymentFailed, req.ID)
}

func windowHours(start, end string) float64 {
	s, err1 := time.Parse("15:04", start)
	e, err2 := time.Parse("15:04", end)
	if err1 != nil || err2 != nil || !e.After(s) {
		return 1
	}
	h := e.Sub(s).Hours()
	if h < 1 {
		return 1
	}
	return h
}
