// Package oggpage encodes and scans the Ogg-style pages that make up every
// recording stream.
//
// Each call to Encoder.Write produces exactly one page carrying one packet.
// The sequence field holds a per-track packet counter rather than a page
// count, and only six bytes of the granule position are populated. Both
// conventions are shared with downstream readers and must not change.
package oggpage
