// Package cli provides the interactive crmkeeper terminal client.
//
// It wires configuration, the durable store (sqlite, postgres or memory),
// the in-process session, the security audit log and the encrypted CRM
// collections behind a small REPL. Typical flow: register or log in, work
// with contacts, deals and leads, log out.
//
// Key features:
//   - Register / Login / Logout / passwd with lockout after repeated failures
//   - Contacts with interaction history, deals by pipeline stage, lead inbox
//   - API keys for completion providers, stored encrypted
//   - JSON export and import, optionally copied to an S3 bucket
//   - Security log and per-action event counters
//
// A background watcher polls the session and forces a logout once it has
// expired; so does any command whose save reports common.ErrNoValidSession.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
