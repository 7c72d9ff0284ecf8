// Package producer turns a ULog file into chunks on the telemetry bus.
//
// The header and definitions section of the file is published as chunks
// that need acknowledgment; the producer waits for each completion event
// before continuing. The data section, which starts at the first
// add-logged-message, is published best-effort at a configured byte rate.
package producer
