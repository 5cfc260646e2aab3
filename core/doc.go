// Package core contains the canonical attestation domain contracts, entities,
// and client orchestration logic. Provider and store adapters must depend on
// this package; core must not depend on provider-specific or
// transport-specific adapters.
package core
