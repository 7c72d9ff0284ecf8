package wire

import (
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/bft-labs/ulogbridge/internal/domain"
)

// Message is a MAVLink message.
type Message = message.Message

// Dialect contains every message the bridge exchanges.
var Dialect = common.Dialect

// MAVLink v2 framing without signature.
const (
	frameOverhead = 12
	maxPayloadLen = 255

	// MaxFrameLen is the size of the largest frame the bridge sends.
	MaxFrameLen = frameOverhead + maxPayloadLen
)

// Untruncated payload sizes of the messages the bridge sends.
const (
	loggingDataLen = 6 + len(common.MessageLoggingData{}.Data)
	loggingAckLen  = 4
	commandLongLen = 33
	commandAckLen  = 10
)

// Data returns the logging data message for c: LOGGING_DATA_ACKED when the
// chunk needs an ack, LOGGING_DATA otherwise.
func Data(c *domain.LogChunk) Message {
	if c.NeedsAck {
		return &common.MessageLoggingDataAcked{
			Sequence:           c.Sequence,
			Length:             c.Length,
			FirstMessageOffset: c.FirstMessageOffset,
			Data:               c.Data,
		}
	}
	return &common.MessageLoggingData{
		Sequence:           c.Sequence,
		Length:             c.Length,
		FirstMessageOffset: c.FirstMessageOffset,
		Data:               c.Data,
	}
}

// Chunk extracts the chunk carried by a logging data message. ok is false
// for any other message.
func Chunk(m Message) (c domain.LogChunk, ok bool) {
	switch m := m.(type) {
	case *common.MessageLoggingData:
		return domain.LogChunk{
			Sequence:           m.Sequence,
			Length:             m.Length,
			FirstMessageOffset: m.FirstMessageOffset,
			Data:               m.Data,
		}, true
	case *common.MessageLoggingDataAcked:
		return domain.LogChunk{
			Sequence:           m.Sequence,
			Length:             m.Length,
			FirstMessageOffset: m.FirstMessageOffset,
			Data:               m.Data,
			NeedsAck:           true,
		}, true
	default:
		return c, false
	}
}

// Ack acknowledges the LOGGING_DATA_ACKED with sequence seq.
func Ack(seq uint16) *common.MessageLoggingAck {
	return &common.MessageLoggingAck{Sequence: seq}
}

// Start asks the vehicle to start streaming.
func Start() *common.MessageCommandLong {
	return &common.MessageCommandLong{Command: common.MAV_CMD_LOGGING_START}
}

// Stop asks the vehicle to stop streaming.
func Stop() *common.MessageCommandLong {
	return &common.MessageCommandLong{Command: common.MAV_CMD_LOGGING_STOP}
}

// CommandAck answers a command.
func CommandAck(cmd common.MAV_CMD, result common.MAV_RESULT) *common.MessageCommandAck {
	return &common.MessageCommandAck{Command: cmd, Result: result}
}

// FrameLen returns the on-air size of m, used for the bandwidth budget.
// Trailing-zero truncation of MAVLink v2 payloads is ignored, so this is
// an upper bound.
func FrameLen(m Message) int {
	switch m.(type) {
	case *common.MessageLoggingData, *common.MessageLoggingDataAcked:
		return frameOverhead + loggingDataLen
	case *common.MessageLoggingAck:
		return frameOverhead + loggingAckLen
	case *common.MessageCommandLong:
		return frameOverhead + commandLongLen
	case *common.MessageCommandAck:
		return frameOverhead + commandAckLen
	default:
		return MaxFrameLen
	}
}

// Name returns the MAVLink name of m for logging.
func Name(m Message) string {
	switch m.(type) {
	case *common.MessageLoggingData:
		return "LOGGING_DATA"
	case *common.MessageLoggingDataAcked:
		return "LOGGING_DATA_ACKED"
	case *common.MessageLoggingAck:
		return "LOGGING_ACK"
	case *common.MessageCommandLong:
		return "COMMAND_LONG"
	case *common.MessageCommandAck:
		return "COMMAND_ACK"
	default:
		return fmt.Sprintf("message %d", m.GetID())
	}
}
