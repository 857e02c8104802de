// Package models contains data models for the utility server.
package models

import (
	"fmt"
	"time"
)

// Aggregator represents a tenant: an organisation managing sites on behalf
// of end customers. Aggregator 0 is the reserved NULL aggregator that owns
// sites registered directly by device certificates.
type Aggregator struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	CreatedTime time.Time `json:"created_time" db:"created_time"`
	ChangedTime time.Time `json:"changed_time" db:"changed_time"`
}

// AggregatorDomain is a FQDN an aggregator has registered as a valid
// notification destination.
type AggregatorDomain struct {
	ID           int64     `json:"id" db:"id"`
	AggregatorID int64     `json:"aggregator_id" db:"aggregator_id"`
	Domain       string    `json:"domain" db:"domain"`
	CreatedTime  time.Time `json:"created_time" db:"created_time"`
	ChangedTime  time.Time `json:"changed_time" db:"changed_time"`
}

// Certificate is a registered client TLS certificate, keyed by its LFDI.
type Certificate struct {
	ID      int64     `json:"id" db:"id"`
	LFDI    string    `json:"lfdi" db:"lfdi"`
	Created time.Time `json:"created" db:"created"`
	Expiry  time.Time `json:"expiry" db:"expiry"`
}

// IsExpired returns true if the certificate has expired at the given instant.
func (c *Certificate) IsExpired(now time.Time) bool {
	return !c.Expiry.After(now)
}

// CertificateAssignment links a certificate to the aggregator it
// authenticates as.
type CertificateAssignment struct {
	ID            int64 `json:"id" db:"id"`
	CertificateID int64 `json:"certificate_id" db:"certificate_id"`
	AggregatorID  int64 `json:"aggregator_id" db:"aggregator_id"`
}

// CreateAggregatorRequest represents an admin request to create a tenant.
type CreateAggregatorRequest struct {
	Name    string   `json:"name" validate:"required,min=1,max=64"`
	Domains []string `json:"domains,omitempty"`
}

// Validate validates the create aggregator request.
func (r *CreateAggregatorRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > 64 {
		return fmt.Errorf("name must be 64 characters or less")
	}
	return nil
}

// AssignCertificateRequest represents an admin request to register a
// certificate for an aggregator. Exactly one of LFDI or Certificate (PEM)
// must be supplied.
type AssignCertificateRequest struct {
	LFDI        string     `json:"lfdi,omitempty"`
	Certificate string     `json:"certificate,omitempty"`
	Expiry      *time.Time `json:"expiry,omitempty"`
}

// Validate validates the assign certificate request.
func (r *AssignCertificateRequest) Validate() error {
	if r.LFDI == "" && r.Certificate == "" {
		return fmt.Errorf("one of lfdi or certificate is required")
	}
	if r.LFDI != "" && r.Certificate != "" {
		return fmt.Errorf("lfdi and certificate are mutually exclusive")
	}
	if r.LFDI != "" && r.Expiry == nil {
		return fmt.Errorf("expiry is required when registering by lfdi")
	}
	return nil
}
