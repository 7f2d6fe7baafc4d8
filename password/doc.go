// Package password implements password hashing and verification.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// A [Chain] keeps bcrypt ($2a$/$2b$/$2y$) records verifiable and reports
// them through NeedsUpgrade so the engine can rehash on the next login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other nickauth package.
//   - Log plaintext passwords.
package password
