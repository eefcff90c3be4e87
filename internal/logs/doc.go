// Package logs reads line-oriented log files for the CLI: the rotated daemon
// log and the plain-text log stream written beside each recording.
//
// Last returns the trailing lines of a file together with the offset to
// resume from; Follow then polls from that offset and hands each new line to
// a callback until its context is canceled. Follow restarts from the top of
// the file when it shrinks, which is what lumberjack rotation looks like from
// the outside.
package logs
