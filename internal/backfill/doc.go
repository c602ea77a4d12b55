// Package backfill implements the sequential logo backfill job: it lists directory
// records, picks the ones that have a website but no logo, sources a logo from a public
// lookup service, re-hosts it and writes the hosted URL back to the record.
//
// Records are handled one at a time. A failure on one record never aborts the run;
// only a failure to list records is fatal.
package backfill
