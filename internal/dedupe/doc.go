// Package dedupe filters repeated deliveries from an at-least-once event
// feed using a time and size bounded window of recently seen keys.
package dedupe
