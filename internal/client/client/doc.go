// Package client contains the uploader's local bootstrap and its link to the
// portal backend.
//
// # Overview
//
//  1. InitDatabase / RunMigrations open the local SQLite database and apply
//     the embedded goose migrations (task snapshot and pending notifications).
//  2. GRPCClient talks to the portal's gRPC endpoint. The uploader only needs
//     the standard health service, which the connectivity monitor uses as an
//     authoritative liveness probe.
//
// # Error Handling
//
// gRPC status codes are mapped to sentinel errors that callers can match with
// errors.Is: ErrUnavailable, ErrUnauthorized.
package client
