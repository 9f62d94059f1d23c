/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package collector

import (
	"errors"
	"time"
)

// ErrMalformedRecord is returned when a source row cannot be parsed.
var ErrMalformedRecord = errors.New("malformed record")

// Station is a candidate base station as read from a source.
type Station struct {
	ID        int
	Address   string
	Latitude  float64
	Longitude float64
}

// Transaction is a single user session served by the station at Address.
type Transaction struct {
	Address string
	UserID  string
	Start   time.Time
	End     time.Time
}

// ServiceMinutes returns the session duration in minutes. Reversed sessions are negative.
func (t Transaction) ServiceMinutes() float64 {
	return t.End.Sub(t.Start).Minutes()
}

// Summary describes one Collect call.
type Summary struct {
	Stations     int
	Transactions int
	// Unmatched counts transactions whose address matched no station.
	Unmatched int
	// Idle counts stations that received no transaction.
	Idle int
}
