/*
Package lobby coordinates ephemeral, named group sessions ("rooms") over
persistent websocket connections, scoped into isolated namespaces.

A connection joins exactly one namespace and, within it, at most one room
at a time. Rooms have a host, a bounded member set and member-broadcast
application events; when the host leaves, the earliest remaining member
takes over, and a room disappears the moment its last member leaves.
All state is in-memory: nothing survives a process restart.

Go Server and Go Client
	Built'n with this package.
	Types like `Server`, `Conn` and `Client` are used by both sides
	(`New` for the server, `Dial` for the client). The same wire protocol
	is spoken by both, so any side can be reimplemented independently.

Transports
	The `gorilla` and `gobwas` subpackages provide ready `Upgrader` and
	`Dialer` implementations; any transport completing the `Socket`
	interface can be plugged in instead.
*/
package lobby
