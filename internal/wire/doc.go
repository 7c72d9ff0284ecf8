// Package wire maps the streaming protocol onto MAVLink messages of the
// common dialect:
//
//	LOGGING_DATA        best-effort chunk
//	LOGGING_DATA_ACKED  chunk the receiver must acknowledge
//	LOGGING_ACK         acknowledgment of a LOGGING_DATA_ACKED sequence
//	COMMAND_LONG        MAV_CMD_LOGGING_START / MAV_CMD_LOGGING_STOP
//	COMMAND_ACK         result of a logging command
//
// Framing, checksums and parsing are done by gomavlib.
package wire
