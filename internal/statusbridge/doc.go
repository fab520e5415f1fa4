// Package statusbridge mirrors the device registry onto MQTT and accepts
// device commands from it.
//
// Topics:
//
//	autopair/device/{id}/state   retained StateMessage, cleared on removal
//	autopair/event/{type}        registry events and command acks
//	autopair/command/{id}        inbound CommandMessage
//
// State is only republished when it differs from the last message sent for
// that device, so the periodic refresh does not flood the broker.
package statusbridge
