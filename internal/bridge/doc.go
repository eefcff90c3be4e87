// Package bridge terminates wire protocol peers for a live recording.
//
// A Bridge is created per recording and observes the capture session, so
// native and bridged speakers are relayed to monitors the same way. Data
// peers get a bridged track through the session's normal allocation path;
// every logged-in non-ping peer also receives presence and speaking updates.
// The websocket Server adapts gorilla connections to the Conn interface and
// routes them to the Bridge registered for the requested recording.
package bridge
