package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/adbtp/internal/testutil/testlog"
)

func TestHeaderRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, data := range [][]byte{nil, []byte("host::features=shell_v2")} {
		in := NewMessage(CommandCNXN, 0x01000001, 256*1024, data)
		out, err := DecodeHeader(EncodeHeader(in.Header))
		if err != nil {
			t.Fatalf("decode header: %v", err)
		}
		if out != in.Header {
			t.Fatalf("header mismatch: got=%+v want=%+v", out, in.Header)
		}
		if out.DataLength != uint32(len(data)) {
			t.Fatalf("data length=%d want %d", out.DataLength, len(data))
		}
	}
}

func TestEncodeHeaderIsLittleEndian(t *testing.T) {
	testlog.Start(t)
	b := EncodeHeader(NewMessage(CommandOKAY, 1, 2, nil).Header)
	if !bytes.Equal(b[0:4], []byte("OKAY")) {
		t.Fatalf("command bytes=%q", b[0:4])
	}
	if CommandName(CommandWRTE) != "WRTE" {
		t.Fatalf("command name=%q", CommandName(CommandWRTE))
	}
}

func TestDecodeHeaderRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeHeader([]byte{1, 2, 3}); !errors.Is(err, ErrHeaderLength) {
		t.Fatalf("expected ErrHeaderLength, got %v", err)
	}

	h := NewMessage(CommandOPEN, 1, 0, []byte("shell:\x00")).Header
	h.Magic = 0
	if _, err := DecodeHeader(EncodeHeader(h)); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}

	unknown := Header{Command: 0x41414141, Magic: 0x41414141 ^ 0xffffffff}
	if _, err := DecodeHeader(EncodeHeader(unknown)); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}

	big := NewMessage(CommandWRTE, 1, 2, nil).Header
	big.DataLength = MaxDataLength + 1
	_, err := DecodeHeader(EncodeHeader(big))
	if !errors.Is(err, ErrDataTooLarge) {
		t.Fatalf("expected ErrDataTooLarge, got %v", err)
	}
	if !errors.Is(err, ErrWireProtocol) {
		t.Fatalf("codec errors should wrap ErrWireProtocol: %v", err)
	}
}

func TestBuildMessageChecksAgainstHeader(t *testing.T) {
	testlog.Start(t)
	msg := NewMessage(CommandWRTE, 3, 4, []byte("payload"))
	got, err := BuildMessage(msg.Header, msg.Data)
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if !bytes.Equal(got.Data, msg.Data) || got.Header != msg.Header {
		t.Fatalf("message mismatch: %+v", got)
	}
	if _, err := BuildMessage(msg.Header, []byte("short")); !errors.Is(err, ErrDataLength) {
		t.Fatalf("expected ErrDataLength, got %v", err)
	}
	if _, err := BuildMessage(msg.Header, []byte("paylo@d")); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
}
