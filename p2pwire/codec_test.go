package p2pwire

import (
	"bytes"
	"testing"

	"github.com/nervosnetwork/ckb-sub009/types"
)

func TestWriteReadMessageSmall(t *testing.T) {
	var buf bytes.Buffer
	msg := &MsgPing{Nonce: 42}
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	ping, ok := got.(*MsgPing)
	if !ok {
		t.Fatalf("expected *MsgPing, got %T", got)
	}
	if ping.Nonce != 42 {
		t.Fatalf("expected nonce 42, got %d", ping.Nonce)
	}
}

func TestWriteReadMessageCompressed(t *testing.T) {
	var buf bytes.Buffer
	headers := make([]types.Header, 200)
	msg := &MsgSendHeaders{Headers: headers}
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected non-empty frame")
	}
	if buf.Bytes()[0]&compressedFlag == 0 {
		t.Fatalf("expected compression flag set for a large payload")
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	sh, ok := got.(*MsgSendHeaders)
	if !ok {
		t.Fatalf("expected *MsgSendHeaders, got %T", got)
	}
	if len(sh.Headers) != 200 {
		t.Fatalf("expected 200 headers, got %d", len(sh.Headers))
	}
}

func TestStatusCodeClassification(t *testing.T) {
	if !StatusMalformedMessage.IsClientError() {
		t.Fatalf("expected 400 to be a client error")
	}
	if StatusMalformedMessage.IsServerError() {
		t.Fatalf("400 must not classify as a server error")
	}
	if !StatusInternalError.IsServerError() {
		t.Fatalf("expected 500 to be a server error")
	}
}
