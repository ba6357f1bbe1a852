// Package recurrence computes the next occurrence of a daily, weekly or monthly period
// in a given timezone.
//
// Candidates are always built from wall-clock fields with time.Date in the target
// location and the delay is the difference between two absolute instants, so DST
// transitions shift the delay (23h/25h days) rather than the local firing time.
package recurrence
