// Package validator compares two replicas of the bookmark tree and reports
// every structural inconsistency it finds.
//
// [Validate] takes the client's records and the server's records, both
// already decrypted, and returns [Results]. [ValidateServer] runs only the
// checks that need a single replica. Neither function mutates its input or
// attempts a repair, and malformed input (duplicate guids, parent cycles)
// is reported as more results rather than as an error.
//
// The tree root "places" is implicit: a record whose parent is "places" is
// never an orphan, even when no "places" record is present.
package validator
