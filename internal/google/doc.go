// Package google provides OAuth2 authentication and token management for the
// Gmail API.
//
// Credentials are loaded from a client-secrets JSON descriptor (the file
// downloaded from the Google Cloud console) and the granted token is persisted
// as JSON on disk. The Store type implements oauth2.TokenSource with automatic
// refresh: tokens close to expiry are refreshed using the stored refresh token
// and persisted atomically before being handed out.
//
// The server never initiates an interactive authorization flow. When no token
// is stored, Store.Token fails with ErrNoToken and the user is expected to run
// the auth subcommand once to complete the browser-based exchange.
package google
