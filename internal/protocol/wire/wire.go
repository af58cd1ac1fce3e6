package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderBytes is the fixed ADB message header size.
	HeaderBytes = 24
	// MaxDataLength bounds one payload (ADB max payload for protocol version 2).
	MaxDataLength uint32 = 1024 * 1024
)

// Command words are ASCII names packed little-endian.
const (
	CommandSYNC uint32 = 0x434e5953
	CommandCNXN uint32 = 0x4e584e43
	CommandAUTH uint32 = 0x48545541
	CommandOPEN uint32 = 0x4e45504f
	CommandOKAY uint32 = 0x59414b4f
	CommandCLSE uint32 = 0x45534c43
	CommandWRTE uint32 = 0x45545257
)

var ErrWireProtocol = errors.New("wire: protocol error")

var (
	ErrHeaderLength   = fmt.Errorf("%w: invalid header length", ErrWireProtocol)
	ErrInvalidMagic   = fmt.Errorf("%w: invalid magic", ErrWireProtocol)
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrWireProtocol)
	ErrDataTooLarge   = fmt.Errorf("%w: data length too large", ErrWireProtocol)
	ErrDataLength     = fmt.Errorf("%w: data length mismatch", ErrWireProtocol)
	ErrChecksum       = fmt.Errorf("%w: data checksum mismatch", ErrWireProtocol)
)

// Header is the fixed ADB wire header.
type Header struct {
	Command      uint32
	Arg0         uint32
	Arg1         uint32
	DataLength   uint32
	DataChecksum uint32
	Magic        uint32
}

// Message is one complete wire message.
type Message struct {
	Header Header
	Data   []byte
}

func CommandName(cmd uint32) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], cmd)
	return string(b[:])
}

func knownCommand(cmd uint32) bool {
	switch cmd {
	case CommandSYNC, CommandCNXN, CommandAUTH, CommandOPEN, CommandOKAY, CommandCLSE, CommandWRTE:
		return true
	}
	return false
}

// Checksum is the ADB data checksum: the sum of all payload bytes.
func Checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// NewMessage builds a message with length, checksum and magic filled in.
func NewMessage(cmd, arg0, arg1 uint32, data []byte) Message {
	return Message{
		Header: Header{
			Command:      cmd,
			Arg0:         arg0,
			Arg1:         arg1,
			DataLength:   uint32(len(data)),
			DataChecksum: Checksum(data),
			Magic:        cmd ^ 0xffffffff,
		},
		Data: data,
	}
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderBytes)
	binary.LittleEndian.PutUint32(buf[0:4], h.Command)
	binary.LittleEndian.PutUint32(buf[4:8], h.Arg0)
	binary.LittleEndian.PutUint32(buf[8:12], h.Arg1)
	binary.LittleEndian.PutUint32(buf[12:16], h.DataLength)
	binary.LittleEndian.PutUint32(buf[16:20], h.DataChecksum)
	binary.LittleEndian.PutUint32(buf[20:24], h.Magic)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderBytes {
		return Header{}, fmt.Errorf("%w: %d", ErrHeaderLength, len(b))
	}
	h := Header{
		Command:      binary.LittleEndian.Uint32(b[0:4]),
		Arg0:         binary.LittleEndian.Uint32(b[4:8]),
		Arg1:         binary.LittleEndian.Uint32(b[8:12]),
		DataLength:   binary.LittleEndian.Uint32(b[12:16]),
		DataChecksum: binary.LittleEndian.Uint32(b[16:20]),
		Magic:        binary.LittleEndian.Uint32(b[20:24]),
	}
	if h.Magic != h.Command^0xffffffff {
		return Header{}, fmt.Errorf("%w: command=%#08x magic=%#08x", ErrInvalidMagic, h.Command, h.Magic)
	}
	if !knownCommand(h.Command) {
		return Header{}, fmt.Errorf("%w: %#08x", ErrUnknownCommand, h.Command)
	}
	if h.DataLength > MaxDataLength {
		return Header{}, fmt.Errorf("%w: %d", ErrDataTooLarge, h.DataLength)
	}
	return h, nil
}

// BuildMessage pairs a decoded header with its payload bytes.
func BuildMessage(h Header, data []byte) (Message, error) {
	if uint32(len(data)) != h.DataLength {
		return Message{}, fmt.Errorf("%w: header=%d data=%d", ErrDataLength, h.DataLength, len(data))
	}
	if sum := Checksum(data); sum != h.DataChecksum {
		return Message{}, fmt.Errorf("%w: header=%d data=%d", ErrChecksum, h.DataChecksum, sum)
	}
	return Message{Header: h, Data: data}, nil
}

// Codec exposes the package functions as a value the protocol can be configured with.
type Codec struct{}

func (Codec) HeaderBytes() int                                    { return HeaderBytes }
func (Codec) EncodeHeader(h Header) []byte                        { return EncodeHeader(h) }
func (Codec) DecodeHeader(b []byte) (Header, error)               { return DecodeHeader(b) }
func (Codec) BuildMessage(h Header, data []byte) (Message, error) { return BuildMessage(h, data) }
