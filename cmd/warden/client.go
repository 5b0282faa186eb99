package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"warden/pkg/protocol"
)

// dialTimeout bounds both the connect and the round trip; the engine answers
// every command locally.
const dialTimeout = 5 * time.Second

// roundTrip sends one command to the running engine and decodes the reply.
func roundTrip(cmd protocol.Command) (protocol.Response, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return protocol.Response{}, err
	}

	conn, err := net.DialTimeout("unix", paths.SocketPath, dialTimeout)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("engine not running at %s (start it with: warden serve)", paths.SocketPath)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(dialTimeout))

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return protocol.Response{}, fmt.Errorf("send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return protocol.Response{}, fmt.Errorf("read response: %w", err)
		}
		return protocol.Response{}, errors.New("engine closed the connection")
	}

	var resp protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return protocol.Response{}, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		return resp, errors.New(resp.Err)
	}
	return resp, nil
}
