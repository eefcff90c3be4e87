// Package rtpsource receives native speaker audio as RTP over UDP and feeds
// it to a capture session.
//
// Each packet's SSRC is mapped to a speaker id through the configured table;
// unmapped sources are recorded under "ssrc:<n>". Payloads are passed through
// untouched.
package rtpsource
