package discord

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"
)

func TestFatalCloseClassification(t *testing.T) {
	cases := []struct {
		code  int
		fatal bool
	}{
		{4004, true},  // authentication failed
		{4013, true},  // invalid intents
		{4014, true},  // disallowed intents
		{4000, false}, // unknown error, reconnectable
		{4009, false}, // session timed out, reconnectable
		{1006, false}, // abnormal closure
	}
	for _, tc := range cases {
		err := &websocket.CloseError{Code: tc.code}
		if got := isFatalClose(err); got != tc.fatal {
			t.Errorf("close %d fatal = %v, want %v", tc.code, got, tc.fatal)
		}
	}

	if isFatalClose(nil) {
		t.Error("nil error is not fatal")
	}
	if isFatalClose(errors.New("plain error")) {
		t.Error("non-close error is not fatal")
	}
}
