// Package ir holds the domain records shared by every trailkeep package:
// posts, content blocks, account names, identity edges, resources and
// import runs, plus the deterministic encodings they are compared in.
//
// ir imports nothing internal. Everything that is hashed or compared
// byte-for-byte goes through this package:
//   - ContentVersion is the content address of a body
//   - MarshalCanonical/Canonicalize produce the JSON stored in every
//     compared column (type_meta, meta, history, edge context)
//   - NormalizeMedia folds CDN mirror hosts so mirrors hash equal
//   - All JSON tags use snake_case
package ir
