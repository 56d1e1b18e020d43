package wire_test

import (
	"testing"

	"ostrich/pkg/wire"
)

func TestResolveRoundTrip(t *testing.T) {
	for _, d := range wire.Commands() {
		got := wire.Resolve(d.ID)
		if got != d {
			t.Errorf("Resolve(%d) = %+v, want %+v", d.ID, got, d)
		}
		if !got.Known() {
			t.Errorf("descriptor %q reports unknown", d.Name)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	for _, id := range []wire.CommandID{8, 42, 0xFF} {
		d := wire.Resolve(id)
		if d.Known() {
			t.Errorf("Resolve(%d) reports known", id)
		}
		if d.ID != id {
			t.Errorf("Resolve(%d) lost the id: got %d", id, d.ID)
		}
	}
}

func TestCommandFields(t *testing.T) {
	tests := []struct {
		id   wire.CommandID
		want wire.FieldSet
	}{
		{wire.CmdOk, 0},
		{wire.CmdErr, wire.FieldText},
		{wire.CmdGet, 0},
		{wire.CmdMsg, wire.FieldSender | wire.FieldReceiver | wire.FieldText},
		{wire.CmdLogin, wire.FieldSender | wire.FieldText},
		{wire.CmdLogout, 0},
		{wire.CmdJoin, wire.FieldReceiver},
		{wire.CmdLeave, wire.FieldReceiver},
	}
	for _, tt := range tests {
		if got := wire.Resolve(tt.id).Fields; got != tt.want {
			t.Errorf("%v fields = %08b, want %08b", tt.id, got, tt.want)
		}
	}

	if !wire.Resolve(wire.CmdMsg).Fields.Has(wire.FieldReceiver | wire.FieldText) {
		t.Error("msg must carry receiver and text")
	}
	if wire.Resolve(wire.CmdOk).Fields.Has(wire.FieldText) {
		t.Error("ok must not carry text")
	}
}

func TestCommandString(t *testing.T) {
	if got := wire.CmdMsg.String(); got != "msg" {
		t.Errorf("got %q, want %q", got, "msg")
	}
	if got := wire.CommandID(0xFF).String(); got != "unknown(0xff)" {
		t.Errorf("got %q, want %q", got, "unknown(0xff)")
	}
}
