// Package oras provides the OCI transport used by the registry package,
// wrapping the ORAS library.
//
// Client knows nothing about program tables: it pushes and fetches blobs
// and image manifests, resolves and tags references, and handles
// registry authentication through a shared token cache.
package oras
