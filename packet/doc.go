// Package packet implements the wire codec shared by the chain endpoints and
// the host controller.
//
// Two fixed-size packet kinds travel on a chain:
//
//   - Header (15 bytes): operation, hop count, checksum and the 96-bit target
//     BoardID. Headers carry PING/READ/WRITE/EXEC requests and ACK/NACK replies.
//   - Body (528 bytes): kind, checksum, target BoardID, address offset and a
//     512-byte payload. A Body always follows an accepted READ/WRITE/EXEC
//     Header for the same target.
//
// Multi-byte fields are little-endian. Each BoardID word is four consecutive
// bytes, least-significant byte first.
//
// Decoding only checks the byte count. Operation and kind ranges are checked
// by Validate, and checksums by Verify; both are the caller's decision.
package packet
