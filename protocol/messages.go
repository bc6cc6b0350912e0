// Package protocol defines the wire messages exchanged with meter clients and
// the strict JSON codec used to decode them.
package protocol

import (
	"errors"
	"fmt"
)

// RegistrationRequest is the first message a previously unknown client must
// send after connecting.
type RegistrationRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Validate reports whether the registration payload is usable.
func (r *RegistrationRequest) Validate() error {
	if r.Name == "" {
		return errors.New("registration name is required")
	}
	if r.Address == "" {
		return errors.New("registration address is required")
	}
	return nil
}

// ReadingRequest is a single usage reading submitted by a registered client.
type ReadingRequest struct {
	Region string  `json:"region"`
	Usage  float64 `json:"usage"`
}

// Validate reports whether the reading payload is usable.
func (r *ReadingRequest) Validate() error {
	if r.Region == "" {
		return errors.New("reading region is required")
	}
	if r.Usage < 0 {
		return fmt.Errorf("reading usage must be non-negative, got %v", r.Usage)
	}
	return nil
}

// ReadingResponse echoes a reading back to the client with the computed cost.
type ReadingResponse struct {
	Region string  `json:"region"`
	Usage  float64 `json:"usage"`
	Total  float64 `json:"total"`
}

// Grid status values pushed to clients.
const (
	GridStatusUp   = "up"
	GridStatusDown = "down"
)

// GridStatusEvent is an unsolicited server-to-client grid status push.
type GridStatusEvent struct {
	Status string `json:"status"`
}
