package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/connectus-realtime/internal/proto"
)

// ws_smoke rings the callee from the caller and waits for the accept to
// come back, exercising auth, routing and signaling end to end.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	callerToken := flag.String("caller-token", "", "access token of the caller")
	calleeToken := flag.String("callee-token", "", "access token of the callee")
	calleeID := flag.Int64("callee-id", 0, "user id of the callee")
	callType := flag.String("call-type", "voice", "voice or video")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *callerToken == "" || *calleeToken == "" || *calleeID <= 0 {
		return fmt.Errorf("caller-token, callee-token and callee-id are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	caller, err := dial(ctx, *addr, *callerToken)
	if err != nil {
		return fmt.Errorf("dial caller: %w", err)
	}
	defer caller.Close(websocket.StatusNormalClosure, "bye")

	callee, err := dial(ctx, *addr, *calleeToken)
	if err != nil {
		return fmt.Errorf("dial callee: %w", err)
	}
	defer callee.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, caller, proto.InboundTypeCallInvite, proto.CallInviteData{TargetID: *calleeID, CallType: *callType}); err != nil {
		return err
	}

	var incoming struct {
		CallerID   int64  `json:"callerId"`
		CallerName string `json:"callerName"`
		CallType   string `json:"callType"`
	}
	if err := await(ctx, callee, "IncomingCall", &incoming); err != nil {
		return err
	}
	fmt.Printf("IncomingCall: caller=%d name=%q type=%s\n", incoming.CallerID, incoming.CallerName, incoming.CallType)

	if err := send(ctx, callee, proto.InboundTypeCallAccept, proto.CallerData{CallerID: incoming.CallerID}); err != nil {
		return err
	}

	var accepted struct {
		AccepterID int64 `json:"accepterId"`
	}
	if err := await(ctx, caller, "CallAccepted", &accepted); err != nil {
		return err
	}
	fmt.Printf("CallAccepted: accepter=%d\n", accepted.AccepterID)

	if err := send(ctx, caller, proto.InboundTypeCallEnd, proto.CallEndData{OtherUserID: *calleeID}); err != nil {
		return err
	}
	if err := await(ctx, callee, "CallEnded", nil); err != nil {
		return err
	}
	fmt.Println("CallEnded")
	return nil
}

func dial(ctx context.Context, addr, token string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr+"?access_token="+token, nil)
	return conn, err
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

// await reads frames until the named event arrives. Error frames abort.
func await(ctx context.Context, conn *websocket.Conn, event string, out any) error {
	for {
		var frame struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read while waiting for %s: %w", event, err)
		}
		if frame.Type == proto.OutboundTypeError && frame.Error != nil {
			return fmt.Errorf("server error %s: %s", frame.Error.Code, frame.Error.Msg)
		}
		if frame.Event != event {
			continue
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(frame.Data, out); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		return nil
	}
}
