// Package endpoint implements the device side of the chain protocol.
//
// Every device sits between an uplink (toward the host) and a downlink
// (toward the next device). Machine is the pure receive/dispatch state
// machine: it consumes one complete packet from either link and returns the
// packets to send and the delays to observe. Runner is the adapter that reads
// both links, assembles packets into per-link buffers, and executes the
// actions a Machine returns.
//
// Addressing rules for a header received on the uplink:
//
//   - PING to the broadcast id is claimed: hop count +1, target set to the
//     device id, ACK sent uplink, settle delay, then a fresh broadcast PING
//     carrying the new hop count is sent downlink.
//   - PING, READ or WRITE to the device id is answered with an ACK uplink.
//     READ and WRITE then wait for the Body.
//   - Anything addressed to another id is forwarded downlink byte for byte.
//     READ and WRITE put the device in the Relaying state until the exchange
//     completes.
//
// Everything received on the downlink is relayed uplink unchanged.
package endpoint
