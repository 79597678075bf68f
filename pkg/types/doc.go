// Package types defines the record-store data model, the error taxonomy shared
// by every layer, and the capability interfaces (RemoteStore, TokenSource,
// LocalPersistence) that the access layer consumes.
//
// Remote implementations classify failures by wrapping exactly one of the
// sentinel errors in this package; callers branch with errors.Is or Kind.
package types
