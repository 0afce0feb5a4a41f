// Package ingestion runs documents through the upload, process and index
// stages of the backend.
//
// A Pipeline executes one run per call. Stages are strictly sequential and
// advance through core.Transition; the first failing stage ends the run at
// Failed(stage), the results of the stages that completed before it are kept
// on the run, and no later stage is attempted. Nothing is retried: a failed
// run is restarted in full by the caller.
//
// Runs are validated before any effect is issued and at most one run per
// project is in flight at a time. Progress is reported through a
// StageMonitor, and terminal runs are recorded in the run journal when one
// is configured.
//
// Batch runs many files on a worker pool. Files of the same project are run
// one after another; different projects proceed concurrently.
package ingestion
