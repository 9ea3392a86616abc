// Package console provides an interactive shell for driving a fireplace by
// hand.
//
// The shell accepts raw protocol lines ("GET LAMP", "SET FLAME ON"), the
// named command vocabulary shared with the MQTT bridge and HTTP API
// ("lamp_on brightness=128"), and a handful of local commands such as
// state, diag and refresh. Every state change reported by the coordinator
// is printed as it arrives.
//
// Input comes from a LineEditor, which uses readline when stdin is a
// terminal and plain line scanning otherwise, so the console can also be
// scripted through a pipe.
package console
