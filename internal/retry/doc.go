// Package retry runs an operation until it succeeds or a bounded number of
// retries is spent.
//
// Delays between attempts follow one of two schedules:
//
//  1. Fixed: every retry waits InitialDelay.
//  2. Exponential: InitialDelay, 2x, 4x, ... clamped to MaxDelay.
//
// With MaxRetries set to 3 an operation runs at most four times. When every
// attempt fails the caller receives an *ExhaustedError wrapping the last
// failure.
package retry
