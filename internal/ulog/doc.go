// Package ulog reads and writes the framing of ULog files: the 16-byte
// file header, the size/type message header, and dropout markers.
//
// It also reassembles a ULog stream from chunks received over a lossy
// link (see [Assembler]).
package ulog
