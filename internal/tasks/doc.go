// Package tasks drives the reconciliation core on a schedule or on demand.
//
// # Core Operations
//
//  1. [Scanner.ScanAll] : inspect every active playlist
//     - Validates the local directory (advisory)
//     - Lists remote membership and loads the archive ledger
//     - Diffs the two and submits a reconciliation when they differ
//     - Isolates per-playlist failures and reports them in a [ScanSummary]
//
//  2. [Retry] : bounded retry around a single reconcile attempt
//     - Retries only errors [shared.IsRetryable] accepts, with a fixed backoff
//     - Releases the playlist lock between attempts
//
//  3. [Dispatcher] : in-process queue of reconciliations
//     - Persists a [models.SyncJob] per submission
//     - Runs a bounded number of jobs concurrently
//
//  4. [Scheduler] : periodic scans; concurrent triggers share one run
//
//  5. [Lifecycle] : adding, removing and sanitizing playlists and users
//
// # Progress Reporting
//
// Scans and jobs report through non-blocking [ProgressUpdate] channels; updates are dropped
// rather than block the work.
package tasks
