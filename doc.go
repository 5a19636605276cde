// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package energysched is the core of an energy-budget-aware job scheduler for
an HPC batch simulator.

The simulator drives the scheduler through a synchronous decision loop: it
delivers a batch of events tagged with a simulation timestamp and receives
a batch of decisions in return. The scheduler keeps the full state of the
wait queue, the host pool and the energy accounting between calls.

# Overview

Three energy policies share one EASY-backfilling skeleton:

  - power_cap: a hard per-instant power ceiling; jobs that would push the
    estimated platform power above the cap are withheld.
  - energy_budget: an energy counter replenished at a fixed rate and drawn
    down by running and idle hosts; jobs are withheld when the counter or
    its lookahead projection is insufficient.
  - reduce_pc: the head-of-queue reservation is expressed as a reduction
    of the replenishment rate, leaving the residual flow open to backfill.

A plain fcfs baseline with no energy accounting is included for reference.

# Basic Usage

Create a scheduler, initialise it with the simulator's parameter blob, and
hand it event batches:

	sched := energysched.New()
	if err := sched.Init([]byte(`{"policy":"reduce_pc"}`), energysched.FlagFormatJSON); err != nil {
	    log.Fatal(err)
	}
	defer sched.Deinit()

	out, err := sched.TakeDecisions(eventBatch)
	if err != nil {
	    // A non-zero outcome tells the simulator to abort.
	    log.Fatal(err)
	}

# Error Handling

Fatal conditions (unknown format flags, undecodable input) surface as
errors from Init and TakeDecisions; the simulator is expected to abort on
them. Everything else — oversized submissions, energy shortages, failed
allocations — is absorbed into the schedule: the job is rejected or simply
stays queued for a later tick.

# Concurrency

The decision loop is single-threaded and cooperative. TakeDecisions calls
must not overlap; the scheduler serialises state snapshots against the
loop so the monitor can observe it safely from another goroutine.
*/
package energysched
