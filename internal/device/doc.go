// Package device exposes the fireplace as independent capabilities and
// keeps a local record of its state and the commands sent to it.
//
// # Capabilities
//
// Each capability is a thin adapter over the coordinator's command queue:
//
//	Lamp         dimmable lamp, brightness 0-255 <-> LAMPLEVEL 0-10
//	AccentLight  RGBW accent LED, channels 0-255
//	Flame        on/off switch
//	HeatFan      heat fan, percentage 0-100 <-> HEATFANSPEED 0-10
//
// Every action queues its SET commands and then re-reads the affected
// properties, so the reported state always comes from the fireplace.
//
// # History
//
// SQLiteStateHistoryRepository stores snapshots in state_history and
// SQLiteCommandLogRepository stores sent commands in command_log. Both
// tables are created by the embedded migrations.
package device
