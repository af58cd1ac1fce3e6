package echo

import "github.com/danmuck/adbtp/internal/protocol/wire"

// Reply returns what the daemon sends back for msg. WRTE is acknowledged with
// OKAY and echoed on the reverse stream ids, CNXN is answered with a device
// banner, OKAY needs no answer, and anything else comes back verbatim.
func Reply(id string, msg wire.Message) []wire.Message {
	h := msg.Header
	switch h.Command {
	case wire.CommandCNXN:
		return []wire.Message{wire.NewMessage(wire.CommandCNXN, h.Arg0, h.Arg1, Banner(id))}
	case wire.CommandWRTE:
		return []wire.Message{
			wire.NewMessage(wire.CommandOKAY, h.Arg1, h.Arg0, nil),
			wire.NewMessage(wire.CommandWRTE, h.Arg1, h.Arg0, msg.Data),
		}
	case wire.CommandOKAY:
		return nil
	default:
		return []wire.Message{msg}
	}
}

func Banner(id string) []byte {
	return []byte("device::" + id + "\x00")
}
