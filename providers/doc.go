// Package providers contains the built-in attestation provider
// implementations.
package providers
