// Package store persists the pages read from devices.
//
// The first page read for a (board id, address) pair is kept as its
// reference. Every later read of the same pair is appended as a sample, so
// samples can be compared against the reference.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/packet"
)

// ErrNotFound indicates that no reference exists for a board id and address.
var ErrNotFound = errors.New("store: not found")

// Sample is one page read from a device.
type Sample struct {
	// BoardID is the device id formatted as "0x" + 24 hex digits.
	BoardID string `json:"board_id"`
	// Address is the byte address formatted as "0x%08x".
	Address   string    `json:"mem_address"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSample builds the sample of a page read from id at offset.
func NewSample(id packet.BoardID, offset uint16, data packet.Payload, at time.Time) Sample {
	return Sample{
		BoardID:   id.String(),
		Address:   packet.FormatAddress(offset),
		Data:      append([]byte(nil), data[:]...),
		CreatedAt: at.UTC(),
	}
}

// Payload returns the sample data as a page. Short data is zero padded.
func (s Sample) Payload() packet.Payload {
	var p packet.Payload
	copy(p[:], s.Data)

	return p
}

// SampleStore is the persistence collaborator of the station.
type SampleStore interface {
	// HasReference reports whether a reference exists for boardID and address.
	HasReference(ctx context.Context, boardID, address string) (bool, error)
	// Put stores s as the reference when reference is true, as a sample
	// otherwise. Storing a reference replaces the previous one.
	Put(ctx context.Context, s Sample, reference bool) error
	// Reference returns the reference for boardID and address, or ErrNotFound.
	Reference(ctx context.Context, boardID, address string) (Sample, error)
	// Samples returns the samples for boardID and address, oldest first.
	Samples(ctx context.Context, boardID, address string) ([]Sample, error)
	// Close releases the store.
	Close() error
}
