// Package present consumes published frames and makes them observable
// outside the process.
//
// A Presenter is the only reader of an Owner's frame buffer. It polls at a
// fixed interval, counts frames that were overwritten before it got to them,
// and hands each new frame to its sinks. Hub is a sink that streams frame
// summaries to websocket subscribers, and NewRouter exposes the hub, the
// latest frame and Prometheus metrics over HTTP.
package present
