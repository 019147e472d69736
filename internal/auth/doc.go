// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

// Package auth provides account registration, credential verification and
// server-side sessions.
//
// # Domain Types
//
//   - Account - a registered identity keyed by exact-match email
//   - Session - an opaque random ID bound to one account; at most one per account
//
// Sessions should be created with NewSession, which validates its fields.
//
// # Services
//
// Service coordinates the repositories and the PasswordHasher:
//   - Register - policy checks, duplicate detection, hashing, insert
//   - Login - verification and atomic session replacement
//   - Logout - deletion by session ID
//   - ValidateSession - lookup by session ID
//
// # Errors
//
// Every error returned by Service classifies through KindOf into a closed set
// of kinds. Taxonomy errors carry an oops code (see the Code* constants) and
// wrap the matching Err* sentinel. Collaborator failures classify as
// KindInternal.
//
// Repository implementations live in the postgres, sqlite and redis
// subpackages.
package auth
