// Package api wires the HTTP surface: the event consumer endpoints the
// pub/sub transport delivers to, the reminder scheduling API, the
// scheduler callback endpoint, the websocket entry point, and health.
//
// Consumer endpoints always answer 200: the acknowledgement status in
// the body (SUCCESS, RETRY, DROP) tells the transport what to do with
// the message, and an HTTP error would only trigger blind redelivery.
package api
