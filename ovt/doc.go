// Package ovt implements a pull client for the OVT (Origin-to-Verify
// Transport) protocol: it connects to a remote origin over TCP, negotiates
// a session via Describe/Play, and reassembles inbound media packets into
// complete frames handed off to a caller-supplied sink.
//
// The package owns exactly one origin session per Client. Downstream frame
// routing, provider/application stream registries, configuration loading
// and metrics collection are deliberately left to the caller; Client only
// depends on the narrow MediaRouter, StreamMetrics and AnnexBFramer
// interfaces.
package ovt
