// Package chain implements the host side of the chain protocol.
//
// A Controller owns the link to one chain and runs one exchange at a time:
//
//   - Discover broadcasts a PING and collects one ACK per device, in chain
//     order.
//   - Ping checks a single device with an addressed PING.
//   - Read sends READ, waits for the ACK, sends the request Body and returns
//     the payload of the reply Body.
//   - Write sends WRITE, waits for the ACK and sends the data Body. Writes
//     are not confirmed by the device.
//
// Every blocking read has a deadline. Failures are returned as *OpError and
// never retried here. After a failure the controller drains the line until it
// is silent, so late replies do not leak into the next exchange.
//
// A Worker serializes requests for one port through a channel, so several
// chains can be driven concurrently with one worker each.
package chain
