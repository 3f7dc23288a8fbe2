/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package testmodels holds entity types shared by tests across providers.
package testmodels

import (
	"fmt"

	"github.com/go-openapi/strfmt"

	"github.com/suparena/cloudstore/storagemodels"
)

// RatingSystem is stored with the site as partition key and the system id as row key.
type RatingSystem struct {
	storagemodels.EntityBase

	// Timestamp when the rating system was created.
	// Format: date-time
	CreatedAt *strfmt.DateTime `json:"CreatedAt,omitempty"`

	// A description of the rating system.
	Description string `json:"Description,omitempty"`

	// Name of the rating system.
	Name string `json:"Name"`

	// Number of rated players.
	Players int64 `json:"Players"`

	// Whether the rating system accepts new results.
	Active bool `json:"Active"`
}

// NewRatingSystem builds a rating system entity under site/id.
func NewRatingSystem(site, id, name string) RatingSystem {
	return RatingSystem{
		EntityBase: storagemodels.EntityBase{PartitionKey: site, RowKey: id},
		Name:       name,
	}
}

// RatingSystems builds n rating systems in site with row keys rs000, rs001, ...
func RatingSystems(site string, n int) []RatingSystem {
	out := make([]RatingSystem, n)
	for i := range out {
		out[i] = NewRatingSystem(site, fmt.Sprintf("rs%03d", i), fmt.Sprintf("System %d", i))
		out[i].Players = int64(i)
		out[i].Active = i%2 == 0
	}
	return out
}
