// Package client is a small blocking client for the key-value server.
//
// Each Conn wraps one TCP connection and performs strict request/response
// exchanges: one write, then one read of whatever the server sent back.
//
//	conn, err := client.Dial(ctx, "127.0.0.1:12345")
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	_ = conn.Set("key1", "value1")
//	res, err := conn.Get("key1")
//
// SendFragments writes a command in several pieces. The server treats every
// read as a complete command, so fragmented commands are answered piece by
// piece; this is useful for exercising that behaviour.
package client
