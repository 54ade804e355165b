// Package importer loads a broker roster from YAML into the directory.
package importer

import (
	"context"
	"fmt"
	"io"

	"broker_portal_backend/internal/brokers/transport"
	"broker_portal_backend/platform/logger"
	"broker_portal_backend/platform/validator"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Roster is the file format read by the broker-import command.
//
//	brokers:
//	  - userId: 6f1c...
//	    displayName: Ada Broker
//	    email: ada@example.com
//	    phone: "+31612345678"
//	    active: true
//	    rank: 10
//	    territories: [AMS, UTR]
type Roster struct {
	Brokers []Entry `yaml:"brokers"`
}

type Entry struct {
	UserID      string   `yaml:"userId"`
	DisplayName string   `yaml:"displayName"`
	Email       string   `yaml:"email"`
	Phone       string   `yaml:"phone"`
	Active      bool     `yaml:"active"`
	Rank        int      `yaml:"rank"`
	Territories []string `yaml:"territories"`
}

// Importer upserts one broker.
type Importer interface {
	Import(ctx context.Context, req transport.CreateBrokerRequest) (transport.BrokerResponse, error)
}

// Summary reports the outcome of one run.
type Summary struct {
	Imported int
	Failed   int
}

// Parse decodes a roster, rejecting unknown fields.
func Parse(r io.Reader) (Roster, error) {
	var roster Roster
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&roster); err != nil {
		return Roster{}, fmt.Errorf("parse roster: %w", err)
	}
	return roster, nil
}

// Run imports every entry, continuing past bad rows.
func Run(ctx context.Context, svc Importer, val *validator.Validator, roster Roster, log *logger.Logger) Summary {
	var summary Summary
	for i, entry := range roster.Brokers {
		if ctx.Err() != nil {
			break
		}

		req, err := entry.request()
		if err == nil {
			err = val.Struct(req)
		}
		if err == nil {
			_, err = svc.Import(ctx, req)
		}
		if err != nil {
			summary.Failed++
			log.Warn("broker import row failed", "row", i+1, "userId", entry.UserID, "error", err)
			continue
		}
		summary.Imported++
	}
	return summary
}

func (e Entry) request() (transport.CreateBrokerRequest, error) {
	userID, err := uuid.Parse(e.UserID)
	if err != nil {
		return transport.CreateBrokerRequest{}, fmt.Errorf("invalid userId %q: %w", e.UserID, err)
	}
	return transport.CreateBrokerRequest{
		UserID:        userID,
		DisplayName:   e.DisplayName,
		Email:         e.Email,
		Phone:         e.Phone,
		Active:        e.Active,
		DirectoryRank: e.Rank,
		Territories:   e.Territories,
	}, nil
}
