package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"warden/pkg/protocol"
)

// startMockEngine serves one scripted response per received command on a
// fresh UDS socket and points WARDEN_SOCKET at it.
func startMockEngine(t *testing.T, respond func(cmd protocol.Command) protocol.Response) {
	t.Helper()

	// /tmp keeps the socket path under the UDS length limit.
	sockPath := fmt.Sprintf("/tmp/warden-test-%d.sock", time.Now().UnixNano())
	t.Setenv("WARDEN_SOCKET", sockPath)

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		_ = ln.Close()
		_ = os.Remove(sockPath)
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				encoder := json.NewEncoder(conn)
				for scanner.Scan() {
					var cmd protocol.Command
					if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
						return
					}
					if err := encoder.Encode(respond(cmd)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
}
