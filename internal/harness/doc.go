// Package harness runs scripted break-tracking scenarios end to end.
//
// A scenario is a YAML file listing submissions, clock advances and batch
// runs. The harness drives the real ingress gate and batch processor against
// an in-memory store with a manual clock and sequential entry IDs, records a
// trace of every submission, processed entry and run, and then evaluates the
// scenario's assertions against that trace and the final tables.
//
// # Scenario Format
//
//	name: coffee_round_trip
//	description: Start a coffee break and come back late
//	steps:
//	  - submit: {user: alice, text: cf, expect: queued}
//	  - run: 1
//	  - advance: 17m
//	  - submit: {user: alice, text: back}
//	  - run: 1
//	assertions:
//	  - type: final_state
//	    table: punch_log
//	    where: {NAME: alice}
//	    expect: {TIME_SPENT: "17", STATUS: COMPLETED}
//
// Rush steps submit from many users concurrently. Scenarios with rushes
// usually set trace: summary, which keeps only run summaries for processing
// so the golden trace does not depend on goroutine scheduling.
//
// # Golden Files
//
// RunWithGolden compares the trace with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
