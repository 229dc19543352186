package core

import (
	"fmt"

	"github.com/signalsfoundry/orrery/model"
)

// AstronomicalUnit in metres, as used for display.
const AstronomicalUnit = 1.496e11

// BodyInfo is the human-readable description of a selected body.
type BodyInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Parent   string `json:"parent,omitempty"`
	Mass     string `json:"mass"`
	Radius   string `json:"radius"`
	Distance string `json:"distance"`
	Period   string `json:"period"`
}

// DescribeBody formats a body's physical and orbital parameters.
func DescribeBody(b model.Body) BodyInfo {
	info := BodyInfo{
		Name:     b.Name,
		Kind:     b.Kind.String(),
		Parent:   b.ParentName,
		Mass:     "-",
		Radius:   "-",
		Distance: "0 (center)",
		Period:   "-",
	}
	if info.Name == "" {
		info.Name = "Unknown"
	}
	if b.Mass > 0 {
		info.Mass = fmt.Sprintf("%.2e kg", b.Mass)
	}
	if b.Radius > 0 {
		info.Radius = fmt.Sprintf("%.0f km", b.Radius/1000)
	}
	if b.Orbit.SemiMajorAxis > 0 {
		info.Distance = fmt.Sprintf("%.2f AU", b.Orbit.SemiMajorAxis/AstronomicalUnit)
	}
	if b.Orbit.Period > 0 {
		years := b.Orbit.Period / (365.25 * secondsPerDay)
		if years < 1 {
			info.Period = fmt.Sprintf("%.1f days", years*365.25)
		} else {
			info.Period = fmt.Sprintf("%.2f years", years)
		}
	}
	return info
}
